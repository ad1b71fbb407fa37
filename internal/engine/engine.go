package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lalalland/topcoder-x-processor/common/logger"
	"github.com/lalalland/topcoder-x-processor/core/config"
	"github.com/lalalland/topcoder-x-processor/internal/challenge"
	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/model"
	"github.com/lalalland/topcoder-x-processor/internal/notify"
	"github.com/lalalland/topcoder-x-processor/internal/store"
	"github.com/lalalland/topcoder-x-processor/internal/tracker"
	"github.com/lalalland/topcoder-x-processor/internal/usermap"
)

// Engine reconciles inbound issue events against the persisted issue records
// and the remote challenge platform. It is the only writer of issue records;
// everything else it touches is an external system reached through a client
// interface.
type Engine struct {
	records   store.IssueRecordStore
	projects  store.ProjectStore
	users     usermap.Service
	platform  challenge.Client
	trackers  tracker.Factory
	notifier  notify.Notifier
	scheduler *CancelScheduler

	labels   config.LabelConfig
	topcoder config.TopcoderConfig
}

func New(
	records store.IssueRecordStore,
	projects store.ProjectStore,
	users usermap.Service,
	platform challenge.Client,
	trackers tracker.Factory,
	notifier notify.Notifier,
	scheduler *CancelScheduler,
	labels config.LabelConfig,
	topcoder config.TopcoderConfig,
) *Engine {
	return &Engine{
		records:   records,
		projects:  projects,
		users:     users,
		platform:  platform,
		trackers:  trackers,
		notifier:  notifier,
		scheduler: scheduler,
		labels:    labels,
		topcoder:  topcoder,
	}
}

func (e *Engine) issueKey(issue *domain.ParsedIssue) store.IssueKey {
	return store.IssueKey{
		Number:       issue.Number,
		Provider:     issue.Provider,
		RepositoryID: issue.RepositoryID,
	}
}

func (e *Engine) contestURL(challengeID string) string {
	return e.topcoder.DirectURLBase + "/" + challengeID
}

// ensureChallengeExists resolves the issue record, creating the challenge
// first when this event arrives before issue.created was processed. A record
// stuck mid-creation surfaces ErrCreationInFlight so the caller requeues the
// event; a record whose creation failed is purged and recreated.
func (e *Engine) ensureChallengeExists(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) (*model.IssueRecord, error) {
	key := e.issueKey(issue)

	rec, err := e.records.GetByKey(ctx, key)
	switch {
	case err == nil:
		switch rec.Status {
		case model.ChallengeCreationPending:
			return nil, ErrCreationInFlight
		case model.ChallengeCreationSuccessful:
			return rec, nil
		case model.ChallengeCreationFailed:
			slog.InfoContext(ctx, "purging stale failed issue record")
			if err := e.records.Delete(ctx, key); err != nil {
				return nil, fmt.Errorf("purging failed record: %w", err)
			}
		}
	case errors.Is(err, store.ErrNotFound):
		// fall through to creation
	default:
		return nil, fmt.Errorf("looking up issue record: %w", err)
	}

	if err := e.handleIssueCreated(ctx, tc, event, issue); err != nil {
		return nil, err
	}

	rec, err = e.records.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("re-reading issue record after creation: %w", err)
	}
	if rec.Status != model.ChallengeCreationSuccessful {
		return nil, fmt.Errorf("challenge creation did not complete, record is %s", rec.Status)
	}
	return rec, nil
}

// rollbackAssignee reverts a tracker-level assignment that cannot proceed:
// posts an explanation, unassigns the user, and optionally reopens the issue.
// comment may be empty, in which case the self-registration nudge is used.
func (e *Engine) rollbackAssignee(ctx context.Context, tc tracker.Client, repo domain.RepositoryPayload, issueNumber int, userID int64, reopen bool, comment string) error {
	login, err := tc.GetUsernameByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolving assignee for rollback: %w", err)
	}

	if comment == "" {
		comment = fmt.Sprintf("@%s, please sign up with the Topcoder X tool before picking up tickets.", login)
	}
	if err := tc.CreateComment(ctx, repo, issueNumber, comment); err != nil {
		return fmt.Errorf("posting rollback comment: %w", err)
	}
	if err := tc.RemoveAssign(ctx, repo, issueNumber, login); err != nil {
		return fmt.Errorf("removing assignment: %w", err)
	}
	if reopen {
		if err := tc.ReopenIssue(ctx, repo, issueNumber); err != nil {
			return fmt.Errorf("reopening issue: %w", err)
		}
	}

	slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{IssueNumber: logger.Ptr(issueNumber)}),
		"rolled back assignment", slog.String("login", login), slog.Bool("reopened", reopen))
	return nil
}
