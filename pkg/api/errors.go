package api

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for the short-circuit outcomes of the event gate. They are
// produced before any workflow executes and map directly onto the inbound
// endpoint's response codes.
var (
	// ErrMissingResource indicates the notification carried no resource id.
	ErrMissingResource = errors.New("no resource id provided")

	// ErrSubjectNotFound indicates no user owns the notified resource.
	ErrSubjectNotFound = errors.New("user not found for resource")

	// ErrEntitlementExhausted indicates the user has zero credits left.
	ErrEntitlementExhausted = errors.New("insufficient credits")
)

// GraphInvalidError reports one or more structural violations found while
// validating a graph. It is raised at save time, before persistence.
type GraphInvalidError struct {
	Reasons []string
}

func (e *GraphInvalidError) Error() string {
	return "invalid graph: " + strings.Join(e.Reasons, "; ")
}

// RateLimitedError is returned by the event gate when a subject's cooldown
// window has not elapsed since the last accepted trigger.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	secs := int(e.RetryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("rate limited, please wait %d seconds", secs)
}

// SchedulerRegistrationError wraps a failure to register the Wait callback
// with the external scheduler. The coordinator stops the run without
// consuming the Wait step so the next natural trigger retries it.
type SchedulerRegistrationError struct {
	Err error
}

func (e *SchedulerRegistrationError) Error() string {
	return "scheduler registration failed: " + e.Err.Error()
}

func (e *SchedulerRegistrationError) Unwrap() error { return e.Err }
