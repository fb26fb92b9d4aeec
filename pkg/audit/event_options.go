package audit

import "github.com/google/uuid"

// WithAccount attributes the event to an account.
func WithAccount(accountID uuid.UUID) EventOption {
	return func(e *Event) {
		e.AccountID = accountID.String()
	}
}

// WithProvider names the billing provider the action ran against.
func WithProvider(name string) EventOption {
	return func(e *Event) {
		e.Provider = name
	}
}

// WithResource sets the resource type and ID the action touched.
func WithResource(resource, id string) EventOption {
	return func(e *Event) {
		e.Resource = resource
		e.ResourceID = id
	}
}

// WithMetadata adds one metadata entry to the event.
func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithResult overrides the event result.
func WithResult(result Result) EventOption {
	return func(e *Event) {
		e.Result = result
	}
}
