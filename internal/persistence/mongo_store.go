package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/flowgate/flowgate/pkg/api"
)

const (
	workflowCollection  = "workflows"
	executionCollection = "executions"
	userCollection      = "users"
)

// MongoStore implements WorkflowStore, ExecutionStore, and UserStore on a
// MongoDB database.
type MongoStore struct {
	database string
	client   *mongo.Client
}

var (
	_ WorkflowStore  = (*MongoStore)(nil)
	_ ExecutionStore = (*MongoStore)(nil)
	_ UserStore      = (*MongoStore)(nil)
)

// NewMongoStore creates a MongoStore on the given database. The caller owns
// the client's lifecycle (connect / disconnect).
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		database: database,
		client:   client,
	}
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.client.Database(s.database).Collection(name)
}

// mongoWorkflow is the stored shape of a workflow document.
type mongoWorkflow struct {
	ID          string            `bson:"_id"`
	UserID      string            `bson:"user_id"`
	Name        string            `bson:"name"`
	Description string            `bson:"description,omitempty"`
	Nodes       string            `bson:"nodes,omitempty"`
	Edges       string            `bson:"edges,omitempty"`
	FlowPath    []api.ActionKind  `bson:"flow_path,omitempty"`
	CronPath    []api.ActionKind  `bson:"cron_path,omitempty"`
	Publish     bool              `bson:"publish"`
	Webhook     api.WebhookConfig `bson:"webhook,omitempty"`
	Channel     api.ChannelConfig `bson:"channel,omitempty"`
	Record      api.RecordConfig  `bson:"record,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
}

func toMongoWorkflow(wf *api.Workflow) mongoWorkflow {
	return mongoWorkflow{
		ID:          wf.ID,
		UserID:      wf.UserID,
		Name:        wf.Name,
		Description: wf.Description,
		Nodes:       wf.Nodes,
		Edges:       wf.Edges,
		FlowPath:    wf.FlowPath,
		CronPath:    wf.CronPath,
		Publish:     wf.Publish,
		Webhook:     wf.Webhook,
		Channel:     wf.Channel,
		Record:      wf.Record,
		CreatedAt:   wf.CreatedAt,
	}
}

func (m mongoWorkflow) toAPI() *api.Workflow {
	return &api.Workflow{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		Description: m.Description,
		Nodes:       m.Nodes,
		Edges:       m.Edges,
		FlowPath:    m.FlowPath,
		CronPath:    m.CronPath,
		Publish:     m.Publish,
		Webhook:     m.Webhook,
		Channel:     m.Channel,
		Record:      m.Record,
		CreatedAt:   m.CreatedAt,
	}
}

func (s *MongoStore) SaveWorkflow(ctx context.Context, wf *api.Workflow) error {
	_, err := s.collection(workflowCollection).InsertOne(ctx, toMongoWorkflow(wf))
	return err
}

func (s *MongoStore) UpdateWorkflow(ctx context.Context, wf *api.Workflow) error {
	res, err := s.collection(workflowCollection).ReplaceOne(ctx,
		bson.M{"_id": wf.ID}, toMongoWorkflow(wf))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (s *MongoStore) GetWorkflow(ctx context.Context, id string) (*api.Workflow, error) {
	var m mongoWorkflow
	err := s.collection(workflowCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrWorkflowNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toAPI(), nil
}

func (s *MongoStore) ListWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error) {
	return s.queryWorkflows(ctx, bson.M{"user_id": userID})
}

func (s *MongoStore) ListPublishedWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error) {
	return s.queryWorkflows(ctx, bson.M{"user_id": userID, "publish": true})
}

func (s *MongoStore) queryWorkflows(ctx context.Context, filter bson.M) ([]*api.Workflow, error) {
	cur, err := s.collection(workflowCollection).Find(ctx, filter,
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var workflows []*api.Workflow
	for cur.Next(ctx) {
		var m mongoWorkflow
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		workflows = append(workflows, m.toAPI())
	}
	return workflows, cur.Err()
}

func (s *MongoStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.collection(workflowCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (s *MongoStore) SetCronPath(ctx context.Context, id string, path []api.ActionKind) error {
	update := bson.M{"$set": bson.M{"cron_path": path}}
	if len(path) == 0 {
		update = bson.M{"$unset": bson.M{"cron_path": ""}}
	}
	res, err := s.collection(workflowCollection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func (s *MongoStore) SetPublish(ctx context.Context, id string, publish bool) error {
	res, err := s.collection(workflowCollection).UpdateOne(ctx,
		bson.M{"_id": id}, bson.M{"$set": bson.M{"publish": publish}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// mongoExecution is the stored shape of an execution record document.
type mongoExecution struct {
	ID          string             `bson:"_id"`
	WorkflowID  string             `bson:"workflow_id"`
	UserID      string             `bson:"user_id"`
	Status      api.RunStatus      `bson:"status"`
	TriggeredBy string             `bson:"triggered_by"`
	TriggerData string             `bson:"trigger_data,omitempty"`
	Actions     []api.ActionResult `bson:"actions,omitempty"`
	Err         string             `bson:"error,omitempty"`
	CreditsUsed int                `bson:"credits_used"`
	ExecutionNs int64              `bson:"execution_ns"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func toMongoExecution(rec *api.ExecutionRecord) mongoExecution {
	return mongoExecution{
		ID:          rec.ID,
		WorkflowID:  rec.WorkflowID,
		UserID:      rec.UserID,
		Status:      rec.Status,
		TriggeredBy: rec.TriggeredBy,
		TriggerData: rec.TriggerData,
		Actions:     rec.Actions,
		Err:         rec.Err,
		CreditsUsed: rec.CreditsUsed,
		ExecutionNs: rec.ExecutionTime.Nanoseconds(),
		CreatedAt:   rec.CreatedAt,
	}
}

func (m mongoExecution) toAPI() *api.ExecutionRecord {
	return &api.ExecutionRecord{
		ID:            m.ID,
		WorkflowID:    m.WorkflowID,
		UserID:        m.UserID,
		Status:        m.Status,
		TriggeredBy:   m.TriggeredBy,
		TriggerData:   m.TriggerData,
		Actions:       m.Actions,
		Err:           m.Err,
		CreditsUsed:   m.CreditsUsed,
		ExecutionTime: time.Duration(m.ExecutionNs),
		CreatedAt:     m.CreatedAt,
	}
}

func (s *MongoStore) SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	_, err := s.collection(executionCollection).InsertOne(ctx, toMongoExecution(rec))
	return err
}

func (s *MongoStore) UpdateExecution(ctx context.Context, rec *api.ExecutionRecord) error {
	res, err := s.collection(executionCollection).ReplaceOne(ctx,
		bson.M{"_id": rec.ID}, toMongoExecution(rec))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrExecutionNotFound
	}
	return nil
}

func (s *MongoStore) GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error) {
	var m mongoExecution
	err := s.collection(executionCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return m.toAPI(), nil
}

func (s *MongoStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.ExecutionRecord, int, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.WorkflowID != "" {
		query["workflow_id"] = filter.WorkflowID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	coll := s.collection(executionCollection)

	total, err := coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	cur, err := coll.Find(ctx, query, options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(limit)))
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var records []*api.ExecutionRecord
	for cur.Next(ctx) {
		var m mongoExecution
		if err := cur.Decode(&m); err != nil {
			return nil, 0, err
		}
		records = append(records, m.toAPI())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}

	return records, int(total), nil
}

// mongoUser is the stored shape of a user document.
type mongoUser struct {
	ID         string `bson:"_id"`
	ResourceID string `bson:"resource_id,omitempty"`
	Credits    string `bson:"credits"`
	Tier       string `bson:"tier,omitempty"`
}

func (s *MongoStore) SaveUser(ctx context.Context, u *api.User) error {
	_, err := s.collection(userCollection).UpdateOne(ctx,
		bson.M{"_id": u.ID},
		bson.M{"$set": bson.M{
			"resource_id": u.ResourceID,
			"credits":     u.Credits,
			"tier":        u.Tier,
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*api.User, error) {
	return s.queryUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByResource(ctx context.Context, resourceID string) (*api.User, error) {
	return s.queryUser(ctx, bson.M{"resource_id": resourceID})
}

func (s *MongoStore) queryUser(ctx context.Context, filter bson.M) (*api.User, error) {
	var m mongoUser
	err := s.collection(userCollection).FindOne(ctx, filter).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &api.User{ID: m.ID, ResourceID: m.ResourceID, Credits: m.Credits, Tier: m.Tier}, nil
}

// DecrementCredits is a read-then-write; concurrent triggers racing on it is
// an accepted, documented risk of the credit accounting model.
func (s *MongoStore) DecrementCredits(ctx context.Context, id string) error {
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
	_, err = s.collection(userCollection).UpdateOne(ctx,
		bson.M{"_id": id}, bson.M{"$set": bson.M{"credits": strconv.Itoa(n - 1)}})
	return err
}
