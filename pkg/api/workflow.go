package api

import (
	"strconv"
	"time"
)

// WebhookConfig holds the stored configuration for a MessagingWebhook action.
type WebhookConfig struct {
	// URL is the destination webhook reference.
	URL string `json:"url,omitempty"`
	// Template is the content sent to the webhook.
	Template string `json:"template,omitempty"`
}

// ChannelConfig holds the stored configuration for a TeamChannelPost action.
type ChannelConfig struct {
	// AccessToken is the credential used when posting.
	AccessToken string `json:"accessToken,omitempty"`
	// Channels is the list of channel ids to post to.
	Channels []string `json:"channels,omitempty"`
	// Template is the message content.
	Template string `json:"template,omitempty"`
}

// RecordConfig holds the stored configuration for a ContentStoreWrite action.
type RecordConfig struct {
	// DatabaseID references the container to write into.
	DatabaseID string `json:"databaseId,omitempty"`
	// AccessToken is the credential used when writing.
	AccessToken string `json:"accessToken,omitempty"`
	// Template is the record content.
	Template string `json:"template,omitempty"`
}

// Workflow is a stored automation: a graph, its compiled flow path, per-kind
// templates, and the publish flag that gates trigger fan-out.
//
// Nodes and Edges hold the serialized graph exactly as the editor saved it;
// FlowPath is recompiled and persisted on every save. CronPath is non-empty
// only while a Wait step is pending.
type Workflow struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Nodes string `json:"nodes,omitempty"`
	Edges string `json:"edges,omitempty"`

	FlowPath []ActionKind `json:"flowPath,omitempty"`
	CronPath []ActionKind `json:"cronPath,omitempty"`

	Publish bool `json:"publish"`

	Webhook WebhookConfig `json:"webhook,omitempty"`
	Channel ChannelConfig `json:"channel,omitempty"`
	Record  RecordConfig  `json:"record,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// CreditsUnlimited is the sticky sentinel value for an unmetered user.
// It is never decremented.
const CreditsUnlimited = "Unlimited"

// User is the subject of trigger events: it owns workflows, a notification
// resource binding, and an entitlement counter.
//
// Credits is encoded as text: either CreditsUnlimited or a non-negative
// integer.
type User struct {
	ID         string `json:"id"`
	ResourceID string `json:"resourceId,omitempty"`
	Credits    string `json:"credits"`
	Tier       string `json:"tier,omitempty"`
}

// HasCredits reports whether the user may trigger workflow execution.
func (u User) HasCredits() bool {
	if u.Credits == CreditsUnlimited {
		return true
	}
	n, err := strconv.Atoi(u.Credits)
	return err == nil && n > 0
}
