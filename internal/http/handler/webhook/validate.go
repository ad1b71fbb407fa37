package webhook

import (
	"fmt"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
)

// validateEvent rejects payloads that cannot possibly be processed before
// they reach the stream. Anything failing here is a malformed webhook, not a
// transient condition, so the caller answers 400 and never enqueues.
func validateEvent(event *domain.Event) error {
	if event.Data.Issue.Number <= 0 {
		return fmt.Errorf("missing issue number")
	}
	if event.Data.Repository.ID == 0 {
		return fmt.Errorf("missing repository id")
	}
	if event.Data.Repository.FullName == "" {
		return fmt.Errorf("missing repository full name")
	}
	return nil
}
