package audit

import (
	"fmt"
	"time"
)

// Result is the outcome of an audited billing action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultError   Result = "error"
)

// Event is a single audit trail entry.
type Event struct {
	ID         string         `json:"id"`
	AccountID  string         `json:"account_id,omitempty"`
	Action     string         `json:"action"`
	Provider   string         `json:"provider,omitempty"`
	Resource   string         `json:"resource,omitempty"`
	ResourceID string         `json:"resource_id,omitempty"`
	Result     Result         `json:"result"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Validate checks the event has its required fields.
func (e *Event) Validate() error {
	if e.Action == "" {
		return fmt.Errorf("%w: action is required", ErrEventValidation)
	}
	return nil
}

// EventOption applies additional detail to an Event during Log/LogError.
type EventOption func(*Event)

// Criteria narrows a Find or Count over the audit trail. Zero fields match
// everything; time bounds are inclusive.
type Criteria struct {
	AccountID string
	Action    string
	Provider  string
	Result    Result
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
