package persistence

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

func newSQLitePersistence(t *testing.T) Persistence {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return Persistence{Workflows: s, Executions: s, Users: s}
}

func TestSQLiteStore_WorkflowRoundTrip(t *testing.T) {
	testWorkflowRoundTrip(t, newSQLitePersistence(t))
}

func TestSQLiteStore_WorkflowNotFound(t *testing.T) {
	testWorkflowNotFound(t, newSQLitePersistence(t))
}

func TestSQLiteStore_PublishFilter(t *testing.T) {
	testPublishFilter(t, newSQLitePersistence(t))
}

func TestSQLiteStore_CronPathLifecycle(t *testing.T) {
	testCronPathLifecycle(t, newSQLitePersistence(t))
}

func TestSQLiteStore_ExecutionRoundTrip(t *testing.T) {
	testExecutionRoundTrip(t, newSQLitePersistence(t))
}

func TestSQLiteStore_ExecutionListFilterAndPaginate(t *testing.T) {
	testExecutionListFilterAndPaginate(t, newSQLitePersistence(t))
}

func TestSQLiteStore_UserCredits(t *testing.T) {
	testUserCredits(t, newSQLitePersistence(t))
}
