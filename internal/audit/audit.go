// Package audit records security- and product-relevant events: session
// transitions and listing lifecycle changes. Emission never blocks the caller;
// when the async buffer is full the event is dropped with a warning.
package audit

import (
	"context"
	"time"
)

// Action identifies what happened.
type Action string

const (
	ActionSignedIn       Action = "session.signed_in"
	ActionSignedOut      Action = "session.signed_out"
	ActionRoleMissing    Action = "session.role_missing"
	ActionListingCreated Action = "listing.created"
	ActionListingUpdated Action = "listing.updated"
	ActionListingDeleted Action = "listing.deleted"
)

// Event is one audit record.
type Event struct {
	Actor     string    `json:"actor"`
	Action    Action    `json:"action"`
	Entity    string    `json:"entity,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink persists events. Implementations: MemorySink, KafkaSink.
type Sink interface {
	Write(ctx context.Context, event Event) error
}
