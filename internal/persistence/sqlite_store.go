package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/flowgate/flowgate/pkg/api"
)

// SQLiteStore implements WorkflowStore, ExecutionStore, and UserStore on a
// single SQLite database.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ WorkflowStore  = (*SQLiteStore)(nil)
	_ ExecutionStore = (*SQLiteStore)(nil)
	_ UserStore      = (*SQLiteStore)(nil)
)

// NewSQLiteStore initializes the required schema in the given database and
// returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			nodes TEXT NOT NULL DEFAULT '',
			edges TEXT NOT NULL DEFAULT '',
			flow_path TEXT NOT NULL DEFAULT '',
			cron_path TEXT NOT NULL DEFAULT '',
			publish INTEGER NOT NULL DEFAULT 0,
			webhook_url TEXT NOT NULL DEFAULT '',
			webhook_template TEXT NOT NULL DEFAULT '',
			channel_token TEXT NOT NULL DEFAULT '',
			channel_list TEXT NOT NULL DEFAULT '',
			channel_template TEXT NOT NULL DEFAULT '',
			record_database TEXT NOT NULL DEFAULT '',
			record_token TEXT NOT NULL DEFAULT '',
			record_template TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_workflows_user ON workflows(user_id, publish);

		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			triggered_by TEXT NOT NULL,
			trigger_data TEXT NOT NULL DEFAULT '',
			actions TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			credits_used INTEGER NOT NULL DEFAULT 0,
			execution_ns INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_user ON executions(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions(workflow_id);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL DEFAULT '',
			credits TEXT NOT NULL DEFAULT '0',
			tier TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_users_resource ON users(resource_id);`,
	)
	return err
}

func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf *api.Workflow) error {
	flowPath, err := EncodePath(wf.FlowPath)
	if err != nil {
		return err
	}
	cronPath, err := EncodePath(wf.CronPath)
	if err != nil {
		return err
	}
	channels, err := EncodeStrings(wf.Channel.Channels)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (
			id, user_id, name, description, nodes, edges, flow_path, cron_path, publish,
			webhook_url, webhook_template, channel_token, channel_list, channel_template,
			record_database, record_token, record_template, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.UserID, wf.Name, wf.Description, wf.Nodes, wf.Edges, flowPath, cronPath, boolToInt(wf.Publish),
		wf.Webhook.URL, wf.Webhook.Template, wf.Channel.AccessToken, channels, wf.Channel.Template,
		wf.Record.DatabaseID, wf.Record.AccessToken, wf.Record.Template, wf.CreatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, wf *api.Workflow) error {
	flowPath, err := EncodePath(wf.FlowPath)
	if err != nil {
		return err
	}
	cronPath, err := EncodePath(wf.CronPath)
	if err != nil {
		return err
	}
	channels, err := EncodeStrings(wf.Channel.Channels)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE workflows
		SET user_id = ?, name = ?, description = ?, nodes = ?, edges = ?, flow_path = ?, cron_path = ?, publish = ?,
			webhook_url = ?, webhook_template = ?, channel_token = ?, channel_list = ?, channel_template = ?,
			record_database = ?, record_token = ?, record_template = ?
		WHERE id = ?`,
		wf.UserID, wf.Name, wf.Description, wf.Nodes, wf.Edges, flowPath, cronPath, boolToInt(wf.Publish),
		wf.Webhook.URL, wf.Webhook.Template, wf.Channel.AccessToken, channels, wf.Channel.Template,
		wf.Record.DatabaseID, wf.Record.AccessToken, wf.Record.Template,
		wf.ID,
	)
	if err != nil {
		return err
	}
	return oneRowAffected(res, ErrWorkflowNotFound)
}

const workflowColumns = `id, user_id, name, description, nodes, edges, flow_path, cron_path, publish,
	webhook_url, webhook_template, channel_token, channel_list, channel_template,
	record_database, record_token, record_template, created_at`

func (s *SQLiteStore) scanWorkflow(row interface{ Scan(...any) error }) (*api.Workflow, error) {
	var wf api.Workflow
	var flowPath, cronPath, channels string
	var publish int
	var createdNs int64

	err := row.Scan(
		&wf.ID, &wf.UserID, &wf.Name, &wf.Description, &wf.Nodes, &wf.Edges, &flowPath, &cronPath, &publish,
		&wf.Webhook.URL, &wf.Webhook.Template, &wf.Channel.AccessToken, &channels, &wf.Channel.Template,
		&wf.Record.DatabaseID, &wf.Record.AccessToken, &wf.Record.Template, &createdNs,
	)
	if err != nil {
		return nil, err
	}

	if wf.FlowPath, err = DecodePath(flowPath); err != nil {
		return nil, err
	}
	if wf.CronPath, err = DecodePath(cronPath); err != nil {
		return nil, err
	}
	if wf.Channel.Channels, err = DecodeStrings(channels); err != nil {
		return nil, err
	}
	wf.Publish = publish != 0
	wf.CreatedAt = time.Unix(0, createdNs)

	return &wf, nil
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*api.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := s.scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWorkflowNotFound
	}
	return wf, err
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error) {
	return s.queryWorkflows(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE user_id = ? ORDER BY created_at DESC`, userID)
}

func (s *SQLiteStore) ListPublishedWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error) {
	return s.queryWorkflows(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE user_id = ? AND publish = 1 ORDER BY created_at DESC`, userID)
}

func (s *SQLiteStore) queryWorkflows(ctx context.Context, query string, args ...any) ([]*api.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*api.Workflow
	for rows.Next() {
		wf, err := s.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (s *SQLiteStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return oneRowAffected(res, ErrWorkflowNotFound)
}

func (s *SQLiteStore) SetCronPath(ctx context.Context, id string, path []api.ActionKind) error {
	encoded, err := EncodePath(path)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE workflows SET cron_path = ? WHERE id = ?`, encoded, id)
	if err != nil {
		return err
	}
	return oneRowAffected(res, ErrWorkflowNotFound)
}

func (s *SQLiteStore) SetPublish(ctx context.Context, id string, publish bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE workflows SET publish = ? WHERE id = ?`, boolToInt(publish), id)
	if err != nil {
		return err
	}
	return oneRowAffected(res, ErrWorkflowNotFound)
}

func (s *SQLiteStore) SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	actions, err := EncodeActions(rec.Actions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, user_id, status, triggered_by, trigger_data, actions, error, credits_used, execution_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkflowID, rec.UserID, string(rec.Status), rec.TriggeredBy, rec.TriggerData,
		actions, rec.Err, rec.CreditsUsed, rec.ExecutionTime.Nanoseconds(), rec.CreatedAt.UnixNano(),
	)
	return err
}

func (s *SQLiteStore) UpdateExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	actions, err := EncodeActions(rec.Actions)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = ?, actions = ?, error = ?, credits_used = ?, execution_ns = ?
		WHERE id = ?`,
		string(rec.Status), actions, rec.Err, rec.CreditsUsed, rec.ExecutionTime.Nanoseconds(), rec.ID,
	)
	if err != nil {
		return err
	}
	return oneRowAffected(res, ErrExecutionNotFound)
}

const executionColumns = `id, workflow_id, user_id, status, triggered_by, trigger_data, actions, error, credits_used, execution_ns, created_at`

func scanExecution(row interface{ Scan(...any) error }) (*api.ExecutionRecord, error) {
	var rec api.ExecutionRecord
	var status, actions string
	var executionNs, createdNs int64

	err := row.Scan(
		&rec.ID, &rec.WorkflowID, &rec.UserID, &status, &rec.TriggeredBy, &rec.TriggerData,
		&actions, &rec.Err, &rec.CreditsUsed, &executionNs, &createdNs,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = api.RunStatus(status)
	if rec.Actions, err = DecodeActions(actions); err != nil {
		return nil, err
	}
	rec.ExecutionTime = time.Duration(executionNs)
	rec.CreatedAt = time.Unix(0, createdNs)

	return &rec, nil
}

func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	rec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	return rec, err
}

func (s *SQLiteStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.ExecutionRecord, int, error) {
	var clauses []string
	var args []any

	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.WorkflowID != "" {
		clauses = append(clauses, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + executionColumns + ` FROM executions` + where + ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*api.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (s *SQLiteStore) SaveUser(ctx context.Context, u *api.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, resource_id, credits, tier) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resource_id = excluded.resource_id, credits = excluded.credits, tier = excluded.tier`,
		u.ID, u.ResourceID, u.Credits, u.Tier,
	)
	return err
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*api.User, error) {
	return s.queryUser(ctx, `SELECT id, resource_id, credits, tier FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) GetUserByResource(ctx context.Context, resourceID string) (*api.User, error) {
	return s.queryUser(ctx, `SELECT id, resource_id, credits, tier FROM users WHERE resource_id = ?`, resourceID)
}

func (s *SQLiteStore) queryUser(ctx context.Context, query string, arg any) (*api.User, error) {
	var u api.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.ResourceID, &u.Credits, &u.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) DecrementCredits(ctx context.Context, id string) error {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if u.Credits == api.CreditsUnlimited {
		return nil
	}
	n, err := strconv.Atoi(u.Credits)
	if err != nil || n <= 0 {
		n = 1
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET credits = ? WHERE id = ?`, strconv.Itoa(n-1), id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func oneRowAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
