package engine

import (
	"errors"
	"fmt"
)

// ErrCreationInFlight signals that another event is mid-way through creating
// the challenge for this issue key. The caller should requeue the whole event
// rather than treat it as a failure.
var ErrCreationInFlight = errors.New("challenge creation in flight")

// ValidationError rejects a malformed event before any handler runs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid event: " + e.Reason
}

// NotFoundError is terminal for the event: a required mapping (project,
// billing account) does not exist and retrying cannot fix that.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found for %s", e.Kind, e.Key)
}

// IsTransient reports whether the event should be redelivered.
func IsTransient(err error) bool {
	return errors.Is(err, ErrCreationInFlight)
}

// Outcome is what a handler hands back to the queue layer. PaymentSuccessful
// is sticky: the worker copies it onto any redelivery of the same event so a
// completed payout is never repeated.
type Outcome struct {
	PaymentSuccessful bool
}
