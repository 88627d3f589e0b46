package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flowgate/flowgate/pkg/api"
)

// The store suite runs the same scenarios against every backend. Each
// Test*Store file supplies a fresh Persistence per scenario.

func sampleWorkflow(id, userID string, created time.Time) *api.Workflow {
	return &api.Workflow{
		ID:          id,
		UserID:      userID,
		Name:        "wf " + id,
		Description: "sample",
		Nodes:       `[{"id":"t","kind":"Trigger"}]`,
		Edges:       `[]`,
		FlowPath:    []api.ActionKind{api.KindMessagingWebhook, api.KindWait},
		Publish:     false,
		Webhook:     api.WebhookConfig{URL: "https://hook.example", Template: "hi"},
		Channel:     api.ChannelConfig{AccessToken: "tok", Channels: []string{"C1", "C2"}, Template: "msg"},
		Record:      api.RecordConfig{DatabaseID: "db", AccessToken: "ntok", Template: "row"},
		CreatedAt:   created,
	}
}

func testWorkflowRoundTrip(t *testing.T, p Persistence) {
	t.Helper()
	ctx := context.Background()
	created := time.Now().Truncate(time.Millisecond)

	wf := sampleWorkflow("wf-1", "u-1", created)
	if err := p.Workflows.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}

	got, err := p.Workflows.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if got.Name != wf.Name || got.UserID != wf.UserID || got.Description != wf.Description {
		t.Fatalf("got %+v", got)
	}
	if len(got.FlowPath) != 2 || got.FlowPath[0] != api.KindMessagingWebhook || got.FlowPath[1] != api.KindWait {
		t.Fatalf("FlowPath = %v", got.FlowPath)
	}
	if len(got.Channel.Channels) != 2 {
		t.Fatalf("Channels = %v", got.Channel.Channels)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}

	got.Name = "renamed"
	got.Webhook.Template = "updated"
	if err := p.Workflows.UpdateWorkflow(ctx, got); err != nil {
		t.Fatalf("UpdateWorkflow failed: %v", err)
	}
	again, err := p.Workflows.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if again.Name != "renamed" || again.Webhook.Template != "updated" {
		t.Fatalf("update not visible: %+v", again)
	}

	if err := p.Workflows.DeleteWorkflow(ctx, "wf-1"); err != nil {
		t.Fatalf("DeleteWorkflow failed: %v", err)
	}
	if _, err := p.Workflows.GetWorkflow(ctx, "wf-1"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("err = %v, want ErrWorkflowNotFound", err)
	}
}

func testWorkflowNotFound(t *testing.T, p Persistence) {
	t.Helper()
	ctx := context.Background()

	if _, err := p.Workflows.GetWorkflow(ctx, "nope"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("GetWorkflow err = %v", err)
	}
	if err := p.Workflows.UpdateWorkflow(ctx, sampleWorkflow("nope", "u", time.Now())); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("UpdateWorkflow err = %v", err)
	}
	if err := p.Workflows.DeleteWorkflow(ctx, "nope"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("DeleteWorkflow err = %v", err)
	}
	if err := p.Workflows.SetCronPath(ctx, "nope", nil); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("SetCronPath err = %v", err)
	}
	if err := p.Workflows.SetPublish(ctx, "nope", true); !errors.Is(err, ErrWorkflowNotFound) {
		t.Fatalf("SetPublish err = %v", err)
	}
}

func testPublishFilter(t *testing.T, p Persistence) {
	t.Helper()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		wf := sampleWorkflow(fmt.Sprintf("wf-%d", i), "u-1", base.Add(time.Duration(i)*time.Second))
		if err := p.Workflows.SaveWorkflow(ctx, wf); err != nil {
			t.Fatalf("SaveWorkflow failed: %v", err)
		}
	}
	if err := p.Workflows.SetPublish(ctx, "wf-1", true); err != nil {
		t.Fatalf("SetPublish failed: %v", err)
	}

	all, err := p.Workflows.ListWorkflows(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListWorkflows failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListWorkflows returned %d, want 3", len(all))
	}
	// Newest first.
	if all[0].ID != "wf-2" {
		t.Fatalf("first listed = %s, want wf-2", all[0].ID)
	}

	published, err := p.Workflows.ListPublishedWorkflows(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListPublishedWorkflows failed: %v", err)
	}
	if len(published) != 1 || published[0].ID != "wf-1" {
		t.Fatalf("published = %v", published)
	}

	if list, _ := p.Workflows.ListWorkflows(ctx, "someone-else"); len(list) != 0 {
		t.Fatalf("foreign user sees %d workflows", len(list))
	}
}

func testCronPathLifecycle(t *testing.T, p Persistence) {
	t.Helper()
	ctx := context.Background()

	wf := sampleWorkflow("wf-1", "u-1", time.Now())
	if err := p.Workflows.SaveWorkflow(ctx, wf); err != nil {
		t.Fatalf("SaveWorkflow failed: %v", err)
	}

	remainder := []api.ActionKind{api.KindContentStoreWrite, api.KindTeamChannelPost}
	if err := p.Workflows.SetCronPath(ctx, "wf-1", remainder); err != nil {
		t.Fatalf("SetCronPath failed: %v", err)
	}
	got, err := p.Workflows.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if len(got.CronPath) != 2 || got.CronPath[0] != api.KindContentStoreWrite {
		t.Fatalf("CronPath = %v", got.CronPath)
	}

	if err := p.Workflows.SetCronPath(ctx, "wf-1", nil); err != nil {
		t.Fatalf("clearing SetCronPath failed: %v", err)
	}
	got, err = p.Workflows.GetWorkflow(ctx, "wf-1")
	if err != nil {
		t.Fatalf("GetWorkflow failed: %v", err)
	}
	if len(got.CronPath) != 0 {
		t.Fatalf("CronPath = %v, want empty", got.CronPath)
	}
}

func testExecutionRoundTrip(t *testing.T, p Persistence) {
	t.Helper()
	ctx := context.Background()

	rec := &api.ExecutionRecord{
		ID:          "ex-1",
		WorkflowID:  "wf-1",
		UserID:      "u-1",
		Status:      api.RunRunning,
		TriggeredBy: "notification",
		TriggerData: "resource=res-1 message=7",
		CreditsUsed: 1,
		CreatedAt:   time.Now().Truncate(time.Millisecond),
	}
	if err := p.Executions.SaveExecution(ctx, rec); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}

	rec.Status = api.RunCompletedWithFailures
	rec.Actions = []api.ActionResult{
		{Kind: api.KindMessagingWebhook, Status: api.ActionSuccess},
		{Kind: api.KindTeamChannelPost, Status: api.ActionSkipped, Reason: "no channels configured"},
	}
	rec.ExecutionTime = 42 * time.Millisecond
	if err := p.Executions.UpdateExecution(ctx, rec); err != nil {
		t.Fatalf("UpdateExecution failed: %v", err)
	}

	got, err := p.Executions.GetExecution(ctx, "ex-1")
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if got.Status != api.RunCompletedWithFailures {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.Actions) != 2 || got.Actions[1].Reason != "no channels configured" {
		t.Fatalf("actions = %+v", got.Actions)
	}
	if got.ExecutionTime != 42*time.Millisecond {
		t.Fatalf("ExecutionTime = %s", got.ExecutionTime)
	}

	if err := p.Executions.UpdateExecution(ctx, &api.ExecutionRecord{ID: "ghost"}); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("UpdateExecution err = %v", err)
	}
	if _, err := p.Executions.GetExecution(ctx, "ghost"); !errors.Is(err, ErrExecutionNotFound) {
		t.Fatalf("GetExecution err = %v", err)
	}
}

func testExecutionListFilterAndPaginate(t *testing.T, p Persistence) {
	t.Helper()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		status := api.RunCompleted
		if i%2 == 1 {
			status = api.RunSuspended
		}
		rec := &api.ExecutionRecord{
			ID:          fmt.Sprintf("ex-%d", i),
			WorkflowID:  "wf-1",
			UserID:      "u-1",
			Status:      status,
			TriggeredBy: "notification",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		if err := p.Executions.SaveExecution(ctx, rec); err != nil {
			t.Fatalf("SaveExecution failed: %v", err)
		}
	}

	records, total, err := p.Executions.ListExecutions(ctx, ExecutionFilter{UserID: "u-1"})
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if total != 5 || len(records) != 5 {
		t.Fatalf("total = %d, returned = %d", total, len(records))
	}
	if records[0].ID != "ex-4" {
		t.Fatalf("newest first violated, got %s", records[0].ID)
	}

	records, total, err = p.Executions.ListExecutions(ctx, ExecutionFilter{UserID: "u-1", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("paginated total = %d, want 5", total)
	}
	if len(records) != 2 || records[0].ID != "ex-2" || records[1].ID != "ex-1" {
		t.Fatalf("page = %v", []string{records[0].ID, records[1].ID})
	}

	records, total, err = p.Executions.ListExecutions(ctx, ExecutionFilter{UserID: "u-1", Status: api.RunSuspended})
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("status filter: total = %d, returned = %d", total, len(records))
	}

	records, total, err = p.Executions.ListExecutions(ctx, ExecutionFilter{WorkflowID: "wf-other"})
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if total != 0 || len(records) != 0 {
		t.Fatalf("workflow filter: total = %d, returned = %d", total, len(records))
	}
}

func testUserCredits(t *testing.T, p Persistence) {
	t.Helper()
	ctx := context.Background()

	u := &api.User{ID: "u-1", ResourceID: "res-1", Credits: "2", Tier: "Free"}
	if err := p.Users.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	byResource, err := p.Users.GetUserByResource(ctx, "res-1")
	if err != nil {
		t.Fatalf("GetUserByResource failed: %v", err)
	}
	if byResource.ID != "u-1" {
		t.Fatalf("byResource = %+v", byResource)
	}
	if _, err := p.Users.GetUserByResource(ctx, "nope"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}

	for i := 0; i < 3; i++ {
		if err := p.Users.DecrementCredits(ctx, "u-1"); err != nil {
			t.Fatalf("DecrementCredits failed: %v", err)
		}
	}
	got, err := p.Users.GetUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	// Floors at zero, never negative.
	if got.Credits != "0" {
		t.Fatalf("credits = %s, want 0", got.Credits)
	}

	unlimited := &api.User{ID: "u-2", Credits: api.CreditsUnlimited}
	if err := p.Users.SaveUser(ctx, unlimited); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}
	if err := p.Users.DecrementCredits(ctx, "u-2"); err != nil {
		t.Fatalf("DecrementCredits failed: %v", err)
	}
	got, err = p.Users.GetUser(ctx, "u-2")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Credits != api.CreditsUnlimited {
		t.Fatalf("credits = %s, want %s", got.Credits, api.CreditsUnlimited)
	}
}
