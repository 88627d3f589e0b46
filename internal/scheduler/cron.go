// Package scheduler registers deferred resume callbacks with an external
// cron-API service.
package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CronClient registers every-minute callback jobs against a cron-job API.
// Each job calls the engine's resume endpoint with the workflow id as the
// correlation token; the resume handler clears the pending cron path so the
// callback becomes a no-op once the remainder has run.
type CronClient struct {
	baseURL     string
	apiKey      string
	callbackURL string
	client      *http.Client
}

// NewCronClient creates a CronClient.
//
// baseURL is the cron API root (e.g. "https://api.cron-job.org"), apiKey its
// bearer credential, and callbackURL the externally reachable resume
// endpoint of this service.
func NewCronClient(baseURL, apiKey, callbackURL string, client *http.Client) *CronClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &CronClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		callbackURL: callbackURL,
		client:      client,
	}
}

// cronJob mirrors the cron API's job envelope. The schedule fires every
// minute; the resume handler decides whether anything is left to do.
type cronJob struct {
	URL      string       `json:"url"`
	Enabled  string       `json:"enabled"`
	Schedule cronSchedule `json:"schedule"`
}

type cronSchedule struct {
	Timezone  string   `json:"timezone"`
	ExpiresAt int      `json:"expiresAt"`
	Hours     []int    `json:"hours"`
	MDays     []int    `json:"mdays"`
	Minutes   []string `json:"minutes"`
	Months    []int    `json:"months"`
	WDays     []int    `json:"wdays"`
}

// Register registers a callback job carrying workflowID as its correlation
// token. Any non-2xx reply is a registration failure; the coordinator keeps
// the Wait step unconsumed so the next natural trigger retries.
func (c *CronClient) Register(ctx context.Context, workflowID string) error {
	callback := c.callbackURL + "?flow_id=" + url.QueryEscape(workflowID)

	body, err := json.Marshal(map[string]cronJob{
		"job": {
			URL:     callback,
			Enabled: "true",
			Schedule: cronSchedule{
				Timezone:  "UTC",
				ExpiresAt: 0,
				Hours:     []int{-1},
				MDays:     []int{-1},
				Minutes:   []string{"*"},
				Months:    []int{-1},
				WDays:     []int{-1},
			},
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cron registration: unexpected status %d", resp.StatusCode)
	}
	return nil
}
