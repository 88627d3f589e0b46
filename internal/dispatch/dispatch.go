// Package dispatch binds each action kind to its precondition check and its
// side-effecting call against a delivery collaborator.
package dispatch

import (
	"context"
	"fmt"

	"github.com/flowgate/flowgate/pkg/api"
)

// Delivery is the set of abstract outbound capabilities the dispatch table
// consumes. The engine depends only on these signatures, never on a specific
// provider's wire format.
type Delivery interface {
	// SendWebhookMessage delivers content to a stored webhook reference.
	SendWebhookMessage(ctx context.Context, content, destinationRef string) error

	// PostToChannels posts content to each of the given channels using the
	// given credential.
	PostToChannels(ctx context.Context, credential string, channels []string, content string) error

	// CreateRecord creates a record in the given container using the given
	// credential.
	CreateRecord(ctx context.Context, credential, containerRef, content string) error
}

// Scheduler registers a deferred callback for a suspended run. The scheduler
// later calls the resume endpoint carrying the workflow id as its
// correlation token.
type Scheduler interface {
	Register(ctx context.Context, workflowID string) error
}

// Table maps action kinds onto delivery calls.
type Table struct {
	delivery Delivery
}

// NewTable creates a dispatch table over the given delivery collaborator.
func NewTable(d Delivery) *Table {
	return &Table{delivery: d}
}

// Check reports whether the workflow carries the configuration the given
// kind requires. A missing precondition is a skip, not a failure: the
// coordinator records the reason and moves on, so one misconfigured
// integration never blocks sibling actions.
func (t *Table) Check(wf *api.Workflow, kind api.ActionKind) (reason string, ok bool) {
	switch kind {
	case api.KindMessagingWebhook:
		switch {
		case wf.Webhook.URL == "":
			return "no webhook configured", false
		case wf.Webhook.Template == "":
			return "no webhook template configured", false
		}
		return "", true

	case api.KindTeamChannelPost:
		switch {
		case wf.Channel.AccessToken == "":
			return "no channel access token configured", false
		case len(wf.Channel.Channels) == 0:
			return "no channels configured", false
		case wf.Channel.Template == "":
			return "no channel template configured", false
		}
		return "", true

	case api.KindContentStoreWrite:
		switch {
		case wf.Record.DatabaseID == "":
			return "no content store database configured", false
		case wf.Record.AccessToken == "":
			return "no content store access token configured", false
		case wf.Record.Template == "":
			return "no content store template configured", false
		}
		return "", true

	case api.KindWait:
		// Wait needs no stored configuration; the scheduler call can still
		// fail at invoke time.
		return "", true
	}

	return fmt.Sprintf("unknown action kind %q", kind), false
}

// Invoke performs the side effect for a delivery kind. It must be called at
// most once per kind per run, after Check reported ok.
//
// Wait is not dispatched here: the coordinator owns its suspend semantics.
func (t *Table) Invoke(ctx context.Context, wf *api.Workflow, kind api.ActionKind) error {
	switch kind {
	case api.KindMessagingWebhook:
		return t.delivery.SendWebhookMessage(ctx, wf.Webhook.Template, wf.Webhook.URL)
	case api.KindTeamChannelPost:
		return t.delivery.PostToChannels(ctx, wf.Channel.AccessToken, wf.Channel.Channels, wf.Channel.Template)
	case api.KindContentStoreWrite:
		return t.delivery.CreateRecord(ctx, wf.Record.AccessToken, wf.Record.DatabaseID, wf.Record.Template)
	}
	return fmt.Errorf("kind %q is not dispatchable", kind)
}
