package domain

import (
	"github.com/lalalland/topcoder-x-processor/internal/model"
)

// EventType represents the semantic type of issue activity the processor
// handles.
type EventType string

const (
	EventTypeIssueCreated      EventType = "issue.created"
	EventTypeIssueUpdated      EventType = "issue.updated"
	EventTypeIssueClosed       EventType = "issue.closed"
	EventTypeCommentCreated    EventType = "comment.created"
	EventTypeCommentUpdated    EventType = "comment.updated"
	EventTypeIssueAssigned     EventType = "issue.assigned"
	EventTypeIssueUnassigned   EventType = "issue.unassigned"
	EventTypeIssueLabelUpdated EventType = "issue.labelUpdated"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeIssueCreated, EventTypeIssueUpdated, EventTypeIssueClosed,
		EventTypeCommentCreated, EventTypeCommentUpdated, EventTypeIssueAssigned,
		EventTypeIssueUnassigned, EventTypeIssueLabelUpdated:
		return true
	}
	return false
}

// Event is the canonical event carried on the queue between the webhook
// server and the worker.
type Event struct {
	Type     EventType      `json:"event"`
	Provider model.Provider `json:"provider"`
	Data     EventData      `json:"data"`

	// RetryCount is how many times this event has been redelivered.
	RetryCount int `json:"retryCount,omitempty"`

	// PaymentSuccessful is sticky: once a closed-issue event has paid out,
	// redeliveries of the same event must see it and skip all work. It is
	// threaded back onto the requeued message by the worker, never mutated
	// in place by handlers.
	PaymentSuccessful bool `json:"paymentSuccessful,omitempty"`

	// Copilot is resolved once per event before dispatch.
	Copilot string `json:"-"`
}

type EventData struct {
	Issue      IssuePayload      `json:"issue"`
	Repository RepositoryPayload `json:"repository"`
	Comment    *CommentPayload   `json:"comment,omitempty"`
	Assignee   *UserRef          `json:"assignee,omitempty"`
	Labels     []string          `json:"labels,omitempty"`
}

type IssuePayload struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Labels    []string  `json:"labels"`
	Assignees []UserRef `json:"assignees"`
	Owner     UserRef   `json:"owner"`
}

type RepositoryPayload struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	URL      string `json:"url"`
}

type CommentPayload struct {
	ID   int64   `json:"id"`
	Body string  `json:"body"`
	User UserRef `json:"user"`
}

type UserRef struct {
	ID int64 `json:"id"`
}
