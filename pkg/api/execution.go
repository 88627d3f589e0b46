package api

import "time"

// RunStatus is the lifecycle state of an execution record.
type RunStatus string

const (
	RunRunning               RunStatus = "RUNNING"
	RunCompleted             RunStatus = "COMPLETED"
	RunCompletedWithFailures RunStatus = "COMPLETED_WITH_FAILURES"
	RunSuspended             RunStatus = "SUSPENDED"
	RunFailed                RunStatus = "FAILED"
)

// ActionStatus is the outcome of a single dispatched action within a run.
type ActionStatus string

const (
	// ActionSuccess: the side effect was delivered.
	ActionSuccess ActionStatus = "success"
	// ActionSkipped: a precondition was missing; the action was removed from
	// the remaining path without blocking siblings.
	ActionSkipped ActionStatus = "skipped"
	// ActionFailed: the delivery collaborator returned an error; the run
	// continued.
	ActionFailed ActionStatus = "failed"
)

// ActionResult records one dispatch attempt.
type ActionResult struct {
	Kind   ActionKind   `json:"action"`
	Status ActionStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// ExecutionRecord is the durable record of one coordinator run: one per
// (workflow, trigger event) attempt. A run that suspends on Wait produces a
// SUSPENDED record; the later resumption produces a new record traceable to
// the same workflow id.
//
// Once the run reaches a terminal status the record is append-only.
type ExecutionRecord struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	UserID     string `json:"userId"`

	Status RunStatus `json:"status"`

	// TriggeredBy names the entry point that started the run:
	// "notification" for the event gate, "scheduler" for a Wait resumption.
	TriggeredBy string `json:"triggeredBy"`
	TriggerData string `json:"triggerData,omitempty"`

	Actions []ActionResult `json:"executedActions"`

	// Err is set only when the run hard-failed (storage unavailable, stored
	// path unparseable). Per-action errors live in Actions.
	Err string `json:"error,omitempty"`

	CreditsUsed   int           `json:"creditsUsed"`
	ExecutionTime time.Duration `json:"executionTime"`
	CreatedAt     time.Time     `json:"createdAt"`
}
