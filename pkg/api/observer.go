package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the execution coordinator and event gate
// for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution.
type Observer interface {
	// OnRunStart is called once when a run record has been created, before
	// the first action is dispatched.
	OnRunStart(ctx context.Context, rec *ExecutionRecord)

	// OnRunFinished is called when a run reaches any terminal status
	// (COMPLETED, COMPLETED_WITH_FAILURES, SUSPENDED, FAILED).
	OnRunFinished(ctx context.Context, rec *ExecutionRecord)

	// OnActionStart is called before dispatching an action.
	// index is the 0-based position in the flow path being executed.
	OnActionStart(ctx context.Context, rec *ExecutionRecord, kind ActionKind, index int)

	// OnActionCompleted is called after an action dispatch settles, for
	// successes, skips, and failures alike.
	OnActionCompleted(ctx context.Context, rec *ExecutionRecord, res ActionResult, index int, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnRunStart(ctx context.Context, rec *ExecutionRecord)    {}
func (NoopObserver) OnRunFinished(ctx context.Context, rec *ExecutionRecord) {}
func (NoopObserver) OnActionStart(ctx context.Context, rec *ExecutionRecord, kind ActionKind, index int) {
}
func (NoopObserver) OnActionCompleted(ctx context.Context, rec *ExecutionRecord, res ActionResult, index int, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnRunStart(ctx context.Context, rec *ExecutionRecord) {
	for _, o := range c.observers {
		o.OnRunStart(ctx, rec)
	}
}

func (c *CompositeObserver) OnRunFinished(ctx context.Context, rec *ExecutionRecord) {
	for _, o := range c.observers {
		o.OnRunFinished(ctx, rec)
	}
}

func (c *CompositeObserver) OnActionStart(ctx context.Context, rec *ExecutionRecord, kind ActionKind, index int) {
	for _, o := range c.observers {
		o.OnActionStart(ctx, rec, kind, index)
	}
}

func (c *CompositeObserver) OnActionCompleted(ctx context.Context, rec *ExecutionRecord, res ActionResult, index int, d time.Duration) {
	for _, o := range c.observers {
		o.OnActionCompleted(ctx, rec, res, index, d)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs run / action lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnRunStart(ctx context.Context, rec *ExecutionRecord) {
	o.Logger.InfoContext(ctx, "run_start",
		slog.String("workflow_id", rec.WorkflowID),
		slog.String("record_id", rec.ID),
		slog.String("triggered_by", rec.TriggeredBy),
	)
}

func (o *LoggingObserver) OnRunFinished(ctx context.Context, rec *ExecutionRecord) {
	level := slog.LevelInfo
	if rec.Status == RunFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "run_finished",
		slog.String("workflow_id", rec.WorkflowID),
		slog.String("record_id", rec.ID),
		slog.String("status", string(rec.Status)),
		slog.Duration("duration", rec.ExecutionTime),
	)
}

func (o *LoggingObserver) OnActionStart(ctx context.Context, rec *ExecutionRecord, kind ActionKind, index int) {
	o.Logger.DebugContext(ctx, "action_start",
		slog.String("workflow_id", rec.WorkflowID),
		slog.String("record_id", rec.ID),
		slog.String("action", string(kind)),
		slog.Int("index", index),
	)
}

func (o *LoggingObserver) OnActionCompleted(ctx context.Context, rec *ExecutionRecord, res ActionResult, index int, d time.Duration) {
	level := slog.LevelDebug
	if res.Status == ActionFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "action_completed",
		slog.String("workflow_id", rec.WorkflowID),
		slog.String("record_id", rec.ID),
		slog.String("action", string(res.Kind)),
		slog.String("status", string(res.Status)),
		slog.String("reason", res.Reason),
		slog.Int("index", index),
		slog.Duration("duration", d),
	)
}

// BasicMetrics collects simple counters and aggregate action durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	runsStarted   atomic.Int64
	runsCompleted atomic.Int64
	runsSuspended atomic.Int64
	runsFailed    atomic.Int64

	actionsExecuted     atomic.Int64
	totalActionDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	RunsStarted   int64
	RunsCompleted int64
	RunsSuspended int64
	RunsFailed    int64

	ActionsExecuted   int64
	AvgActionDuration time.Duration
}

func (m *BasicMetrics) OnRunStart(ctx context.Context, rec *ExecutionRecord) {
	m.runsStarted.Add(1)
}

func (m *BasicMetrics) OnRunFinished(ctx context.Context, rec *ExecutionRecord) {
	switch rec.Status {
	case RunCompleted, RunCompletedWithFailures:
		m.runsCompleted.Add(1)
	case RunSuspended:
		m.runsSuspended.Add(1)
	case RunFailed:
		m.runsFailed.Add(1)
	}
}

func (m *BasicMetrics) OnActionCompleted(ctx context.Context, rec *ExecutionRecord, res ActionResult, index int, d time.Duration) {
	// Only count delivered actions for the average duration.
	if res.Status == ActionSuccess {
		m.actionsExecuted.Add(1)
		m.totalActionDuration.Add(d.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	actions := m.actionsExecuted.Load()
	totalNs := m.totalActionDuration.Load()

	var avg time.Duration
	if actions > 0 {
		avg = time.Duration(totalNs / actions)
	}

	return BasicMetricsSnapshot{
		RunsStarted:       m.runsStarted.Load(),
		RunsCompleted:     m.runsCompleted.Load(),
		RunsSuspended:     m.runsSuspended.Load(),
		RunsFailed:        m.runsFailed.Load(),
		ActionsExecuted:   actions,
		AvgActionDuration: avg,
	}
}
