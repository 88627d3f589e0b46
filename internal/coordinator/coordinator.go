// Package coordinator drives a compiled flow path through its dispatch
// entries, persisting progress and suspending behind Wait steps.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowgate/flowgate/internal/dispatch"
	"github.com/flowgate/flowgate/internal/persistence"
	"github.com/flowgate/flowgate/pkg/api"
)

// Trigger sources recorded on execution records.
const (
	TriggerNotification = "notification"
	TriggerScheduler    = "scheduler"
)

// Trigger describes what started a run.
type Trigger struct {
	// Source is TriggerNotification or TriggerScheduler.
	Source string
	// Data is opaque context from the inbound event (message number,
	// resource id) kept for traceability.
	Data string
	// CreditsUsed is the entitlement charged to the event that caused this
	// run; zero for resumptions and unmetered users.
	CreditsUsed int
}

// Coordinator executes flow paths. It is safe for concurrent use; each run
// keeps its own cursor and executed-set, and no lock is held across a
// suspension point.
type Coordinator struct {
	workflows  persistence.WorkflowStore
	executions persistence.ExecutionStore
	table      *dispatch.Table
	scheduler  dispatch.Scheduler
	observer   api.Observer
}

// New creates a Coordinator. A nil observer defaults to NoopObserver.
func New(p persistence.Persistence, table *dispatch.Table, scheduler dispatch.Scheduler, observer api.Observer) *Coordinator {
	if observer == nil {
		observer = api.NoopObserver{}
	}
	return &Coordinator{
		workflows:  p.Workflows,
		executions: p.Executions,
		table:      table,
		scheduler:  scheduler,
		observer:   observer,
	}
}

// Execute runs the workflow's compiled flow path against a trigger event and
// returns the execution record for the attempt.
//
// Per-action problems (missing preconditions, delivery errors) are recorded
// on the result and never abort the run; the returned error is non-nil only
// for unrecoverable failures (the backing store refusing writes), in which
// case the record carries status FAILED.
func (c *Coordinator) Execute(ctx context.Context, wf *api.Workflow, trigger Trigger) (*api.ExecutionRecord, error) {
	return c.run(ctx, wf, trigger, wf.FlowPath, false)
}

// Resume continues a workflow suspended behind a Wait step: it executes the
// persisted cron path and clears it once the remainder completes, so a later
// unrelated trigger cannot re-deliver these actions.
//
// A resumption produces its own execution record, traceable to the original
// run through the workflow id.
func (c *Coordinator) Resume(ctx context.Context, wf *api.Workflow, trigger Trigger) (*api.ExecutionRecord, error) {
	return c.run(ctx, wf, trigger, wf.CronPath, true)
}

func (c *Coordinator) run(ctx context.Context, wf *api.Workflow, trigger Trigger, path []api.ActionKind, resumed bool) (*api.ExecutionRecord, error) {
	rec := &api.ExecutionRecord{
		ID:          uuid.NewString(),
		WorkflowID:  wf.ID,
		UserID:      wf.UserID,
		Status:      api.RunRunning,
		TriggeredBy: trigger.Source,
		TriggerData: trigger.Data,
		CreditsUsed: trigger.CreditsUsed,
		CreatedAt:   time.Now(),
	}

	c.observer.OnRunStart(ctx, rec)

	if err := c.executions.SaveExecution(ctx, rec); err != nil {
		rec.Status = api.RunFailed
		rec.Err = err.Error()
		c.observer.OnRunFinished(ctx, rec)
		return rec, fmt.Errorf("persist execution record: %w", err)
	}

	start := time.Now()

	// The path itself stays immutable: progress is an index plus the set of
	// kinds already dispatched in this run. Fan-out can legitimately repeat
	// a kind through separate node instances; repeats are dropped here
	// without re-invoking the dispatch entry.
	executed := make(map[api.ActionKind]bool, len(path))
	suspended := false
	hadFailure := false

	for i := 0; i < len(path); i++ {
		kind := path[i]
		if executed[kind] {
			continue
		}
		executed[kind] = true

		c.observer.OnActionStart(ctx, rec, kind, i)
		actionStart := time.Now()

		var res api.ActionResult
		if kind == api.KindWait {
			remainder := append([]api.ActionKind(nil), path[i+1:]...)
			var storeErr error
			res, suspended, storeErr = c.dispatchWait(ctx, wf, remainder)
			if storeErr != nil {
				// The store is refusing writes mid-run.
				return c.hardFail(ctx, rec, storeErr, start)
			}
		} else {
			res = c.dispatchAction(ctx, wf, kind)
		}

		rec.Actions = append(rec.Actions, res)
		c.observer.OnActionCompleted(ctx, rec, res, i, time.Since(actionStart))

		if res.Status != api.ActionSuccess {
			hadFailure = true
		}

		if kind == api.KindWait {
			// Suspended runs stop here with the remainder persisted; a
			// failed registration also stops, keeping Wait unconsumed so
			// the next natural trigger retries the full path.
			break
		}
	}

	rec.ExecutionTime = time.Since(start)

	switch {
	case suspended:
		rec.Status = api.RunSuspended
	case hadFailure:
		rec.Status = api.RunCompletedWithFailures
	default:
		rec.Status = api.RunCompleted
	}

	if resumed && !suspended {
		if err := c.workflows.SetCronPath(ctx, wf.ID, nil); err != nil {
			return c.hardFail(ctx, rec, fmt.Errorf("clear cron path for workflow %s: %w", wf.ID, err), start)
		}
	}

	if err := c.executions.UpdateExecution(ctx, rec); err != nil {
		rec.Status = api.RunFailed
		rec.Err = err.Error()
		c.observer.OnRunFinished(ctx, rec)
		return rec, fmt.Errorf("finalize execution record: %w", err)
	}

	c.observer.OnRunFinished(ctx, rec)
	return rec, nil
}

// dispatchAction runs one delivery entry: precondition check, then the side
// effect, downgrading any collaborator error to a per-action failure.
func (c *Coordinator) dispatchAction(ctx context.Context, wf *api.Workflow, kind api.ActionKind) api.ActionResult {
	if reason, ok := c.table.Check(wf, kind); !ok {
		return api.ActionResult{Kind: kind, Status: api.ActionSkipped, Reason: reason}
	}
	if err := c.table.Invoke(ctx, wf, kind); err != nil {
		return api.ActionResult{Kind: kind, Status: api.ActionFailed, Reason: err.Error()}
	}
	return api.ActionResult{Kind: kind, Status: api.ActionSuccess}
}

// dispatchWait registers the scheduler callback and persists the remainder
// of the path as the workflow's cron path. Returns suspended=true only when
// both succeed; a non-nil error means the store refused the cron path write.
func (c *Coordinator) dispatchWait(ctx context.Context, wf *api.Workflow, remainder []api.ActionKind) (api.ActionResult, bool, error) {
	if c.scheduler == nil {
		return api.ActionResult{
			Kind:   api.KindWait,
			Status: api.ActionSkipped,
			Reason: "no scheduler configured",
		}, false, nil
	}

	if err := c.scheduler.Register(ctx, wf.ID); err != nil {
		regErr := &api.SchedulerRegistrationError{Err: err}
		return api.ActionResult{
			Kind:   api.KindWait,
			Status: api.ActionFailed,
			Reason: regErr.Error(),
		}, false, nil
	}

	if err := c.workflows.SetCronPath(ctx, wf.ID, remainder); err != nil {
		return api.ActionResult{}, false, fmt.Errorf("persist cron path for workflow %s: %w", wf.ID, err)
	}

	return api.ActionResult{Kind: api.KindWait, Status: api.ActionSuccess}, true, nil
}

func (c *Coordinator) hardFail(ctx context.Context, rec *api.ExecutionRecord, cause error, start time.Time) (*api.ExecutionRecord, error) {
	rec.Status = api.RunFailed
	rec.Err = cause.Error()
	rec.ExecutionTime = time.Since(start)
	// Best effort: the store may be the thing that is failing.
	_ = c.executions.UpdateExecution(ctx, rec)
	c.observer.OnRunFinished(ctx, rec)
	return rec, cause
}
