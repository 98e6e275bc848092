package actions

import (
	"errors"
	"fmt"
	"time"

	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// NotFoundError reports a referenced entity that does not exist. Not
// retryable: the reference will not become valid by waiting.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// InvalidStateError reports an action that is inapplicable to the entity's
// current state, e.g. assigning an intake that already has a pipeline.
type InvalidStateError struct {
	Entity string
	Key    string
	Reason string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.Key, e.Reason)
}

// ConflictError reports a scheduling conflict that the caller did not
// override. The conflicting events ride along for the audit trail.
type ConflictError struct {
	Result models.ConflictResult
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict with %d event(s)", len(e.Result.Conflicts))
}

// ExecutionTimeoutError reports an outbound automation call that exceeded
// its deadline.
type ExecutionTimeoutError struct {
	AutomationID string
	Timeout      time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("automation %s timed out after %s", e.AutomationID, e.Timeout)
}

// WebhookRequestError reports a non-2xx response from an automation webhook.
type WebhookRequestError struct {
	AutomationID string
	Status       int
}

func (e *WebhookRequestError) Error() string {
	return fmt.Sprintf("automation %s returned status %d", e.AutomationID, e.Status)
}

// Retryable reports whether the executor should retry the action after err.
// Timeouts and server-side webhook failures are transient; everything else
// (bad references, state conflicts, client errors) will not improve on
// retry.
func Retryable(err error) bool {
	var timeout *ExecutionTimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var webhook *WebhookRequestError
	if errors.As(err, &webhook) {
		return webhook.Status >= 500 || webhook.Status == 429
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return false
	}
	var invalidState *InvalidStateError
	if errors.As(err, &invalidState) {
		return false
	}
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		return false
	}
	// Unknown errors (store failures, network hiccups) get the benefit of
	// the doubt.
	return true
}
