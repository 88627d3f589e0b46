package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/flowgate/flowgate/pkg/api"
)

// fakeDelivery records which capability was invoked and with what.
type fakeDelivery struct {
	webhookContent string
	webhookDest    string

	channelCred    string
	channels       []string
	channelContent string

	recordCred      string
	recordContainer string
	recordContent   string

	err error
}

func (f *fakeDelivery) SendWebhookMessage(_ context.Context, content, destinationRef string) error {
	f.webhookContent = content
	f.webhookDest = destinationRef
	return f.err
}

func (f *fakeDelivery) PostToChannels(_ context.Context, credential string, channels []string, content string) error {
	f.channelCred = credential
	f.channels = channels
	f.channelContent = content
	return f.err
}

func (f *fakeDelivery) CreateRecord(_ context.Context, credential, containerRef, content string) error {
	f.recordCred = credential
	f.recordContainer = containerRef
	f.recordContent = content
	return f.err
}

func configuredWorkflow() *api.Workflow {
	return &api.Workflow{
		ID:      "wf-1",
		UserID:  "u-1",
		Webhook: api.WebhookConfig{URL: "https://hook.example", Template: "hello"},
		Channel: api.ChannelConfig{AccessToken: "tok", Channels: []string{"C1", "C2"}, Template: "post"},
		Record:  api.RecordConfig{DatabaseID: "db-1", AccessToken: "ntok", Template: "row"},
	}
}

func TestCheck_ConfiguredKindsPass(t *testing.T) {
	table := NewTable(&fakeDelivery{})
	wf := configuredWorkflow()

	for _, kind := range []api.ActionKind{
		api.KindMessagingWebhook,
		api.KindTeamChannelPost,
		api.KindContentStoreWrite,
		api.KindWait,
	} {
		if reason, ok := table.Check(wf, kind); !ok {
			t.Fatalf("Check(%s) not ok: %s", kind, reason)
		}
	}
}

func TestCheck_MissingPreconditions(t *testing.T) {
	table := NewTable(&fakeDelivery{})

	cases := []struct {
		name string
		wf   *api.Workflow
		kind api.ActionKind
	}{
		{"webhook url", &api.Workflow{Webhook: api.WebhookConfig{Template: "x"}}, api.KindMessagingWebhook},
		{"webhook template", &api.Workflow{Webhook: api.WebhookConfig{URL: "x"}}, api.KindMessagingWebhook},
		{"channel token", &api.Workflow{Channel: api.ChannelConfig{Channels: []string{"C"}, Template: "x"}}, api.KindTeamChannelPost},
		{"channel list", &api.Workflow{Channel: api.ChannelConfig{AccessToken: "t", Template: "x"}}, api.KindTeamChannelPost},
		{"channel template", &api.Workflow{Channel: api.ChannelConfig{AccessToken: "t", Channels: []string{"C"}}}, api.KindTeamChannelPost},
		{"record database", &api.Workflow{Record: api.RecordConfig{AccessToken: "t", Template: "x"}}, api.KindContentStoreWrite},
		{"record token", &api.Workflow{Record: api.RecordConfig{DatabaseID: "d", Template: "x"}}, api.KindContentStoreWrite},
		{"record template", &api.Workflow{Record: api.RecordConfig{DatabaseID: "d", AccessToken: "t"}}, api.KindContentStoreWrite},
	}

	for _, tc := range cases {
		reason, ok := table.Check(tc.wf, tc.kind)
		if ok {
			t.Fatalf("%s: expected precondition failure", tc.name)
		}
		if reason == "" {
			t.Fatalf("%s: expected a reason", tc.name)
		}
	}
}

func TestCheck_UnknownKind(t *testing.T) {
	table := NewTable(&fakeDelivery{})

	reason, ok := table.Check(configuredWorkflow(), api.ActionKind("Telepathy"))
	if ok {
		t.Fatal("expected unknown kind to fail the check")
	}
	if reason == "" {
		t.Fatal("expected a reason for the unknown kind")
	}
}

func TestInvoke_RoutesToDelivery(t *testing.T) {
	fake := &fakeDelivery{}
	table := NewTable(fake)
	wf := configuredWorkflow()
	ctx := context.Background()

	if err := table.Invoke(ctx, wf, api.KindMessagingWebhook); err != nil {
		t.Fatalf("webhook invoke failed: %v", err)
	}
	if fake.webhookDest != "https://hook.example" || fake.webhookContent != "hello" {
		t.Fatalf("webhook got (%q, %q)", fake.webhookDest, fake.webhookContent)
	}

	if err := table.Invoke(ctx, wf, api.KindTeamChannelPost); err != nil {
		t.Fatalf("channel invoke failed: %v", err)
	}
	if fake.channelCred != "tok" || len(fake.channels) != 2 || fake.channelContent != "post" {
		t.Fatalf("channel got (%q, %v, %q)", fake.channelCred, fake.channels, fake.channelContent)
	}

	if err := table.Invoke(ctx, wf, api.KindContentStoreWrite); err != nil {
		t.Fatalf("record invoke failed: %v", err)
	}
	if fake.recordCred != "ntok" || fake.recordContainer != "db-1" || fake.recordContent != "row" {
		t.Fatalf("record got (%q, %q, %q)", fake.recordCred, fake.recordContainer, fake.recordContent)
	}
}

func TestInvoke_DeliveryErrorPropagates(t *testing.T) {
	wantErr := errors.New("provider down")
	table := NewTable(&fakeDelivery{err: wantErr})

	err := table.Invoke(context.Background(), configuredWorkflow(), api.KindMessagingWebhook)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected delivery error, got %v", err)
	}
}

func TestInvoke_NonDispatchableKinds(t *testing.T) {
	table := NewTable(&fakeDelivery{})
	wf := configuredWorkflow()

	for _, kind := range []api.ActionKind{api.KindTrigger, api.KindWait, api.ActionKind("Telepathy")} {
		if err := table.Invoke(context.Background(), wf, kind); err == nil {
			t.Fatalf("Invoke(%s) should fail", kind)
		}
	}
}
