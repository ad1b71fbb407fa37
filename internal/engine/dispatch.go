package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lalalland/topcoder-x-processor/common/logger"
	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/parser"
	"github.com/lalalland/topcoder-x-processor/internal/tracker"
)

// Process validates an event, normalizes it into a ParsedIssue, and routes it
// to the matching handler. It is the single entry point the worker calls; the
// returned Outcome must be threaded back onto any redelivery of the event.
func (e *Engine) Process(ctx context.Context, event *domain.Event) (Outcome, error) {
	if err := validate(event); err != nil {
		return Outcome{}, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		IssueNumber:  logger.Ptr(event.Data.Issue.Number),
		Provider:     logger.Ptr(string(event.Provider)),
		RepositoryID: logger.Ptr(event.Data.Repository.ID),
		EventType:    logger.Ptr(string(event.Type)),
	})

	tc, err := e.trackers.ForProvider(event.Provider)
	if err != nil {
		return Outcome{}, err
	}

	issue, err := e.parseIssue(ctx, tc, event)
	if err != nil {
		return Outcome{}, err
	}

	switch event.Type {
	case domain.EventTypeIssueCreated:
		return Outcome{}, e.handleIssueCreated(ctx, tc, event, issue)
	case domain.EventTypeIssueUpdated:
		return Outcome{}, e.handleIssueUpdated(ctx, tc, event, issue)
	case domain.EventTypeIssueClosed:
		return e.handleIssueClosed(ctx, tc, event, issue)
	case domain.EventTypeIssueAssigned:
		return Outcome{}, e.handleIssueAssigned(ctx, tc, event, issue)
	case domain.EventTypeIssueUnassigned:
		return Outcome{}, e.handleIssueUnassigned(ctx, tc, event, issue)
	case domain.EventTypeIssueLabelUpdated:
		return Outcome{}, e.handleIssueLabelUpdated(ctx, tc, event, issue)
	case domain.EventTypeCommentCreated, domain.EventTypeCommentUpdated:
		return Outcome{}, e.handleComment(ctx, tc, event, issue)
	}
	return Outcome{}, &ValidationError{Reason: fmt.Sprintf("unroutable event type %q", event.Type)}
}

func validate(event *domain.Event) error {
	switch {
	case !event.Type.Valid():
		return &ValidationError{Reason: fmt.Sprintf("unknown event type %q", event.Type)}
	case !event.Provider.Valid():
		return &ValidationError{Reason: fmt.Sprintf("unknown provider %q", event.Provider)}
	case event.Data.Issue.Number <= 0:
		return &ValidationError{Reason: "issue number missing"}
	case event.Data.Repository.ID == 0:
		return &ValidationError{Reason: "repository id missing"}
	case event.Data.Repository.FullName == "":
		return &ValidationError{Reason: "repository full name missing"}
	}
	return nil
}

// parseIssue builds the normalized issue view the handlers work against.
// Issue events must carry a parseable prize tag in the title; comment events
// skip prize parsing since the title is only used for display there.
func (e *Engine) parseIssue(ctx context.Context, tc tracker.Client, event *domain.Event) (*domain.ParsedIssue, error) {
	issue := &domain.ParsedIssue{
		Number:       event.Data.Issue.Number,
		Title:        event.Data.Issue.Title,
		Body:         event.Data.Issue.Body,
		Provider:     event.Provider,
		RepositoryID: event.Data.Repository.ID,
		RepoFullName: event.Data.Repository.FullName,
		RepoURL:      event.Data.Repository.URL,
		Labels:       event.Data.Issue.Labels,
	}
	if len(event.Data.Labels) > 0 {
		issue.Labels = event.Data.Labels
	}

	isComment := event.Type == domain.EventTypeCommentCreated || event.Type == domain.EventTypeCommentUpdated
	if !isComment {
		prizes, stripped, err := parser.ParsePrizes(event.Data.Issue.Title)
		if err != nil {
			return nil, err
		}
		issue.Prizes = prizes
		issue.Title = stripped
	}

	if ref := assigneeRef(event); ref != nil {
		issue.AssigneeID = logger.Ptr(ref.ID)
		login, err := tc.GetUsernameByID(ctx, ref.ID)
		if err != nil {
			// The handlers that need the login re-resolve it; a lookup miss
			// here must not kill events that never touch the assignee.
			slog.DebugContext(ctx, "could not resolve assignee login",
				slog.Int64("user_id", ref.ID), slog.Any("error", err))
		} else {
			issue.Assignee = &login
		}
	}

	return issue, nil
}

// assigneeRef picks the tracker user the event is about: the explicit
// assignee field when present, otherwise the issue's first assignee.
func assigneeRef(event *domain.Event) *domain.UserRef {
	if event.Data.Assignee != nil {
		return event.Data.Assignee
	}
	if len(event.Data.Issue.Assignees) > 0 {
		return &event.Data.Issue.Assignees[0]
	}
	return nil
}
