// Package gate is the single inbound entry point for change notifications:
// it deduplicates redundant deliveries, enforces a per-subject cooldown,
// checks entitlement, and fans the event out to every eligible workflow.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/flowgate/flowgate/internal/coordinator"
	"github.com/flowgate/flowgate/internal/persistence"
	"github.com/flowgate/flowgate/pkg/api"
)

const (
	// DefaultCooldown is the minimum spacing between accepted triggers for
	// one subject. It is the concurrency-control mechanism of record: no
	// explicit locking on the workflow row is otherwise assumed.
	DefaultCooldown = 10 * time.Second

	// DefaultDedupCapacity bounds the recent message-token history.
	DefaultDedupCapacity = 1000
)

// Notification is an inbound "something changed" event: a resource id that
// maps to a subject, and a message sequence token used for deduplication.
type Notification struct {
	ResourceID    string
	MessageNumber string
}

// Summary is the aggregate outcome of one accepted (or no-op) notification.
type Summary struct {
	Message   string `json:"message"`
	Executed  int    `json:"executed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Options tune the gate's dedup and cooldown behavior.
type Options struct {
	// Cooldown overrides DefaultCooldown when positive.
	Cooldown time.Duration
	// DedupCapacity overrides DefaultDedupCapacity when positive.
	DedupCapacity int
	// Logger receives diagnostic events; nil falls back to slog.Default().
	Logger *slog.Logger
}

// Gate screens notifications and fans accepted ones out to the coordinator.
//
// The dedup set and cooldown cache are process-wide mutable state owned by
// the Gate instance: construct one per process and pass it by reference.
type Gate struct {
	users     persistence.UserStore
	workflows persistence.WorkflowStore
	coord     *coordinator.Coordinator

	seen     *dedupSet
	cooldown *gocache.Cache
	window   time.Duration
	logger   *slog.Logger
}

// New creates a Gate over the given stores and coordinator.
func New(p persistence.Persistence, coord *coordinator.Coordinator, opts Options) *Gate {
	window := opts.Cooldown
	if window <= 0 {
		window = DefaultCooldown
	}
	capacity := opts.DedupCapacity
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		users:     p.Users,
		workflows: p.Workflows,
		coord:     coord,
		seen:      newDedupSet(capacity),
		cooldown:  gocache.New(window, window),
		window:    window,
		logger:    logger,
	}
}

// Handle screens one notification and, if it passes every check, executes
// all of the subject's published workflows concurrently with settle-all
// semantics: each workflow's outcome is captured independently and one
// failure never aborts the others.
//
// Entitlement is decremented exactly once per accepted notification, not per
// workflow. Short-circuit outcomes surface as the typed errors of pkg/api.
func (g *Gate) Handle(ctx context.Context, n Notification) (*Summary, error) {
	// Dedup runs first so redundant deliveries stay cheap: same token twice
	// yields exactly one fan-out, the second call is a no-op success.
	if g.seen.CheckAndMark(n.MessageNumber) {
		g.logger.DebugContext(ctx, "duplicate notification ignored",
			slog.String("message_number", n.MessageNumber))
		return &Summary{Message: "Duplicate notification ignored"}, nil
	}

	if n.ResourceID == "" {
		return nil, api.ErrMissingResource
	}

	user, err := g.users.GetUserByResource(ctx, n.ResourceID)
	if err != nil {
		if errors.Is(err, persistence.ErrUserNotFound) {
			return nil, api.ErrSubjectNotFound
		}
		return nil, fmt.Errorf("resolve subject: %w", err)
	}

	if expiry, active := g.cooldownRemaining(user.ID); active {
		return nil, &api.RateLimitedError{RetryAfter: expiry}
	}
	g.cooldown.SetDefault(user.ID, time.Now())

	if !user.HasCredits() {
		return nil, api.ErrEntitlementExhausted
	}

	workflows, err := g.workflows.ListPublishedWorkflows(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list published workflows: %w", err)
	}
	if len(workflows) == 0 {
		return &Summary{Message: "No published workflows to execute"}, nil
	}

	metered := user.Credits != api.CreditsUnlimited
	results := g.fanOut(ctx, workflows, n, metered)

	// One credit per accepted event, regardless of how many workflows ran.
	if metered {
		if err := g.users.DecrementCredits(ctx, user.ID); err != nil {
			g.logger.ErrorContext(ctx, "credit decrement failed",
				slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	summary := &Summary{Message: "Workflows executed", Executed: len(results)}
	for _, err := range results {
		if err == nil {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	g.logger.InfoContext(ctx, "notification processed",
		slog.String("user_id", user.ID),
		slog.Int("executed", summary.Executed),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
	)

	return summary, nil
}

// fanOut executes every workflow as an independently-scheduled task and
// joins them with a settle-all barrier: each slot captures its own outcome
// and no slot's failure cancels a sibling.
func (g *Gate) fanOut(ctx context.Context, workflows []*api.Workflow, n Notification, metered bool) []error {
	results := make([]error, len(workflows))

	var wg sync.WaitGroup
	for i, wf := range workflows {
		wg.Add(1)
		go func(i int, wf *api.Workflow) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = fmt.Errorf("workflow %s panicked: %v", wf.ID, r)
				}
			}()
			results[i] = g.runOne(ctx, wf, n, metered)
		}(i, wf)
	}
	wg.Wait()

	return results
}

func (g *Gate) runOne(ctx context.Context, wf *api.Workflow, n Notification, metered bool) error {
	if len(wf.FlowPath) == 0 {
		return fmt.Errorf("workflow %s has no flow path", wf.ID)
	}

	credits := 0
	if metered {
		credits = 1
	}

	rec, err := g.coord.Execute(ctx, wf, coordinator.Trigger{
		Source:      coordinator.TriggerNotification,
		Data:        "resource=" + n.ResourceID + " message=" + n.MessageNumber,
		CreditsUsed: credits,
	})
	if err != nil {
		return err
	}
	if rec.Status == api.RunFailed {
		return errors.New(rec.Err)
	}
	// Per-action failures are recorded on the execution record but do not
	// count the workflow as failed at the event level.
	return nil
}

// Resume is the scheduler-callback entry point: it loads the workflow the
// correlation token names and executes its persisted cron path.
func (g *Gate) Resume(ctx context.Context, workflowID string) (*api.ExecutionRecord, error) {
	wf, err := g.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if len(wf.CronPath) == 0 {
		return nil, fmt.Errorf("workflow %s has no pending cron path", workflowID)
	}

	return g.coord.Resume(ctx, wf, coordinator.Trigger{
		Source: coordinator.TriggerScheduler,
		Data:   "flow_id=" + workflowID,
	})
}

func (g *Gate) cooldownRemaining(userID string) (time.Duration, bool) {
	_, expiry, found := g.cooldown.GetWithExpiration(userID)
	if !found {
		return 0, false
	}
	remaining := time.Until(expiry)
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}
