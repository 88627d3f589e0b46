// Package delivery implements the outbound delivery capabilities over HTTP.
//
// The engine only ever sees the dispatch.Delivery interface; everything
// provider-shaped (endpoints, auth headers, response envelopes) stays here.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultChatPostURL     = "https://slack.com/api/chat.postMessage"
	defaultContentStoreURL = "https://api.notion.com/v1/pages"
	contentStoreVersion    = "2022-06-28"
)

// HTTPDelivery delivers content to webhooks, team channels, and a content
// store over plain HTTP.
type HTTPDelivery struct {
	client *http.Client

	chatPostURL     string
	contentStoreURL string
}

// Option configures an HTTPDelivery.
type Option func(*HTTPDelivery)

// WithClient replaces the underlying http.Client.
func WithClient(c *http.Client) Option {
	return func(d *HTTPDelivery) { d.client = c }
}

// WithChatPostURL overrides the channel-post endpoint (used in tests).
func WithChatPostURL(url string) Option {
	return func(d *HTTPDelivery) { d.chatPostURL = url }
}

// WithContentStoreURL overrides the content-store endpoint (used in tests).
func WithContentStoreURL(url string) Option {
	return func(d *HTTPDelivery) { d.contentStoreURL = url }
}

// NewHTTPDelivery creates an HTTPDelivery with sane timeouts.
func NewHTTPDelivery(opts ...Option) *HTTPDelivery {
	d := &HTTPDelivery{
		client:          &http.Client{Timeout: 15 * time.Second},
		chatPostURL:     defaultChatPostURL,
		contentStoreURL: defaultContentStoreURL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendWebhookMessage posts {"content": ...} to the destination webhook.
func (d *HTTPDelivery) SendWebhookMessage(ctx context.Context, content, destinationRef string) error {
	body := map[string]string{"content": content}
	resp, err := d.postJSON(ctx, destinationRef, "", body, nil)
	if err != nil {
		return fmt.Errorf("webhook delivery: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// chatResponse is the minimal envelope of a channel-post reply.
type chatResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// PostToChannels posts content to each channel in order. The first failing
// channel aborts the remainder; the caller records the whole action failed
// and the next qualifying trigger retries naturally.
func (d *HTTPDelivery) PostToChannels(ctx context.Context, credential string, channels []string, content string) error {
	for _, channel := range channels {
		body := map[string]string{
			"channel": channel,
			"text":    content,
		}
		resp, err := d.postJSON(ctx, d.chatPostURL, credential, body, nil)
		if err != nil {
			return fmt.Errorf("channel post to %s: %w", channel, err)
		}

		var parsed chatResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		drain(resp)
		if err != nil {
			return fmt.Errorf("channel post to %s: decode response: %w", channel, err)
		}
		if !parsed.OK {
			return fmt.Errorf("channel post to %s: %s", channel, parsed.Error)
		}
	}
	return nil
}

// CreateRecord creates a page-like record in the content store container.
// The template is stored as JSON properties; non-JSON templates fall back to
// a single rich-text field.
func (d *HTTPDelivery) CreateRecord(ctx context.Context, credential, containerRef, content string) error {
	properties := json.RawMessage(content)
	if !json.Valid(properties) {
		fallback, err := json.Marshal(map[string]any{
			"Content": map[string]any{
				"rich_text": []map[string]any{
					{"text": map[string]string{"content": content}},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("content store write: %w", err)
		}
		properties = fallback
	}

	body := map[string]any{
		"parent":     map[string]string{"database_id": containerRef},
		"properties": properties,
	}
	headers := map[string]string{"Notion-Version": contentStoreVersion}

	resp, err := d.postJSON(ctx, d.contentStoreURL, credential, body, headers)
	if err != nil {
		return fmt.Errorf("content store write: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("content store write: status %d: %s", resp.StatusCode, raw)
	}
	return nil
}

func (d *HTTPDelivery) postJSON(ctx context.Context, url, bearer string, body any, headers map[string]string) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return d.client.Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
