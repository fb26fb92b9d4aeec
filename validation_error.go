package billingkit

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError carries user-visible field messages attached to an aborted
// pass, such as a declined card or a missing payment token. It is based on
// url.Values to leverage built-in string slice handling.
type ValidationError url.Values

// Fields the orchestrator attaches messages to.
const (
	FieldCard      = "card"
	FieldCardToken = "card_token"
	FieldPlan      = "plan"
)

// NewValidationError creates an empty validation error.
func NewValidationError() ValidationError {
	return make(ValidationError)
}

// Error implements the error interface.
// Returns a human-readable message summarizing the failures.
func (e ValidationError) Error() string {
	if len(e) == 0 {
		return "Validation failed"
	}

	var parts []string
	for field, messages := range e {
		if len(messages) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", field, messages[0]))
		}
	}

	return fmt.Sprintf("validation error: %s", strings.Join(parts, ", "))
}

// Add adds a message for a field.
func (e ValidationError) Add(field, message string) {
	url.Values(e).Add(field, message)
}

// Get returns the first message for a field.
func (e ValidationError) Get(field string) string {
	return url.Values(e).Get(field)
}

// Has checks if a field has any messages.
func (e ValidationError) Has(field string) bool {
	return len(e[field]) > 0
}

// IsEmpty returns true if there are no messages.
func (e ValidationError) IsEmpty() bool {
	return len(e) == 0
}
