// Package persistence defines the storage interfaces of the engine and its
// in-memory, SQLite, and MongoDB implementations.
package persistence

import (
	"context"
	"errors"

	"github.com/flowgate/flowgate/pkg/api"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound is returned when an execution record is not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrUserNotFound is returned when a user is not found.
	ErrUserNotFound = errors.New("user not found")
)

// WorkflowStore handles storage of workflows.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, wf *api.Workflow) error
	UpdateWorkflow(ctx context.Context, wf *api.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*api.Workflow, error)
	// ListWorkflows returns all workflows owned by a user, newest first.
	ListWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error)
	// ListPublishedWorkflows returns the user's workflows eligible for
	// trigger fan-out (publish = true).
	ListPublishedWorkflows(ctx context.Context, userID string) ([]*api.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// SetCronPath persists the suspended remainder of a flow path.
	// A nil path clears it.
	SetCronPath(ctx context.Context, id string, path []api.ActionKind) error

	// SetPublish flips the publish flag.
	SetPublish(ctx context.Context, id string, publish bool) error
}

// ExecutionFilter selects execution records. Zero values mean "no filter",
// except Limit, where zero falls back to the store's default page size.
type ExecutionFilter struct {
	UserID     string
	WorkflowID string
	Status     api.RunStatus
	Limit      int
	Offset     int
}

// ExecutionStore handles storage of execution records.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, rec *api.ExecutionRecord) error
	UpdateExecution(ctx context.Context, rec *api.ExecutionRecord) error
	GetExecution(ctx context.Context, id string) (*api.ExecutionRecord, error)
	// ListExecutions returns matching records, newest first, plus the total
	// count before pagination.
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*api.ExecutionRecord, int, error)
}

// UserStore handles storage of users and their entitlement counters.
type UserStore interface {
	SaveUser(ctx context.Context, u *api.User) error
	GetUser(ctx context.Context, id string) (*api.User, error)
	// GetUserByResource maps a notification resource id to its owner.
	GetUserByResource(ctx context.Context, resourceID string) (*api.User, error)

	// DecrementCredits subtracts one credit, flooring at zero. The
	// CreditsUnlimited sentinel is sticky and never decremented.
	DecrementCredits(ctx context.Context, id string) error
}

// DefaultListLimit is applied when ExecutionFilter.Limit is zero.
const DefaultListLimit = 50

// Persistence bundles the stores the engine needs.
type Persistence struct {
	Workflows  WorkflowStore
	Executions ExecutionStore
	Users      UserStore
}
