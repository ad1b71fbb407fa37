package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lalalland/topcoder-x-processor/common/logger"
	"github.com/lalalland/topcoder-x-processor/internal/challenge"
	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/model"
	"github.com/lalalland/topcoder-x-processor/internal/parser"
	"github.com/lalalland/topcoder-x-processor/internal/store"
	"github.com/lalalland/topcoder-x-processor/internal/tracker"
	"github.com/lalalland/topcoder-x-processor/internal/usermap"
)

// handleIssueCreated creates the challenge for a brand-new issue. The pending
// record is written before the remote call so concurrent events observe the
// in-flight creation; the unique key on (number, provider, repository) is the
// compare-and-swap that serializes racing creators.
func (e *Engine) handleIssueCreated(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tcx.engine.created"})

	project, err := e.projects.GetByRepoURL(ctx, issue.RepoURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: "project mapping", Key: issue.RepoURL}
		}
		return fmt.Errorf("looking up project: %w", err)
	}
	issue.ProjectID = project.TCDirectID

	rec, err := e.records.CreatePending(ctx, &model.IssueRecord{
		Number:       issue.Number,
		Provider:     issue.Provider,
		RepositoryID: issue.RepositoryID,
		Title:        issue.Title,
		Body:         issue.Body,
		Prizes:       issue.Prizes,
		Labels:       issue.Labels,
		ProjectID:    project.TCDirectID,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("issue record already exists: %w", err)
		}
		return fmt.Errorf("creating pending record: %w", err)
	}

	challengeID, err := e.platform.CreateChallenge(ctx, challenge.ChallengeSpec{
		Name:      issue.Title,
		Detail:    issue.Body,
		Prizes:    issue.Prizes,
		ProjectID: project.TCDirectID,
		Task:      true,
	})
	if err != nil {
		// Leave nothing behind so a later retry starts clean.
		if delErr := e.records.Delete(ctx, e.issueKey(issue)); delErr != nil {
			slog.ErrorContext(ctx, "cleaning up pending record failed", slog.Any("error", delErr))
		}
		return fmt.Errorf("creating challenge: %w", err)
	}

	status := model.ChallengeCreationSuccessful
	if _, err := e.records.Update(ctx, e.issueKey(issue), store.IssueRecordUpdate{
		ChallengeID: &challengeID,
		Status:      &status,
	}); err != nil {
		return fmt.Errorf("recording challenge id: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{ChallengeID: &challengeID})
	slog.InfoContext(ctx, "challenge created", slog.Int64("record_id", rec.ID))

	comment := fmt.Sprintf("Contest %s has been created for this ticket.", e.contestURL(challengeID))
	if err := tc.CreateComment(ctx, event.Data.Repository, issue.Number, comment); err != nil {
		return fmt.Errorf("posting creation comment: %w", err)
	}

	// Issues can arrive already assigned; fold the assignee in through the
	// normal assignment path.
	if issue.AssigneeID != nil {
		return e.handleIssueAssigned(ctx, tc, event, issue)
	}
	return nil
}

// handleIssueUpdated pushes title/body/prize changes to the platform. When
// nothing the challenge cares about changed, the event is a no-op.
func (e *Engine) handleIssueUpdated(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tcx.engine.updated"})

	rec, err := e.ensureChallengeExists(ctx, tc, event, issue)
	if err != nil {
		return err
	}

	if rec.Title == issue.Title && rec.Body == issue.Body && rec.PrimaryPrize() == issue.PrimaryPrize() {
		slog.DebugContext(ctx, "issue unchanged, skipping update")
		return nil
	}

	if err := e.platform.UpdateChallenge(ctx, *rec.ChallengeID, challenge.ChallengePatch{
		Name:   &issue.Title,
		Detail: &issue.Body,
		Prizes: issue.Prizes,
	}); err != nil {
		return fmt.Errorf("updating challenge: %w", err)
	}

	patch := store.IssueRecordUpdate{
		Title:  &issue.Title,
		Body:   &issue.Body,
		Prizes: issue.Prizes,
		Labels: issue.Labels,
	}
	if issue.Assignee != nil {
		patch.Assignee = logger.Ptr(issue.Assignee)
	}
	if _, err := e.records.Update(ctx, e.issueKey(issue), patch); err != nil {
		return fmt.Errorf("persisting issue update: %w", err)
	}

	comment := fmt.Sprintf("Contest %s has been updated - the changes are reflected on the contest.", e.contestURL(*rec.ChallengeID))
	if err := tc.CreateComment(ctx, event.Data.Repository, issue.Number, comment); err != nil {
		return fmt.Errorf("posting update comment: %w", err)
	}
	return nil
}

// handleIssueAssigned registers a mapped assignee on the challenge. The label
// state decides the action:
//
//	open-for-pickup present            -> register on challenge, label assigned
//	missing, no previous assignee      -> add not-ready label, roll back
//	missing, previous assignee present -> restore labels, roll back
//
// The rollback branches never touch the platform challenge.
func (e *Engine) handleIssueAssigned(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tcx.engine.assigned"})

	if issue.AssigneeID == nil {
		return &ValidationError{Reason: "assignment event without an assignee"}
	}
	assigneeID := *issue.AssigneeID

	handle, err := e.users.GetTCUserName(ctx, issue.Provider, assigneeID)
	if err != nil {
		if errors.Is(err, usermap.ErrNotMapped) {
			return e.rollbackAssignee(ctx, tc, event.Data.Repository, issue.Number, assigneeID, false, "")
		}
		return fmt.Errorf("resolving assignee handle: %w", err)
	}

	rec, err := e.ensureChallengeExists(ctx, tc, event, issue)
	if err != nil {
		return err
	}

	if !hasLabel(issue.Labels, e.labels.OpenForPickup) {
		if rec.Assignee == nil {
			if err := tc.AddLabels(ctx, event.Data.Repository, issue.Number, []string{e.labels.NotReady}); err != nil {
				return fmt.Errorf("adding not-ready label: %w", err)
			}
			msg := fmt.Sprintf("This ticket is not ready to be worked on yet. It will be available once it carries the %s label.", e.labels.OpenForPickup)
			return e.rollbackAssignee(ctx, tc, event.Data.Repository, issue.Number, assigneeID, false, msg)
		}

		// A previous assignee exists: put the stored labels back and explain.
		if err := tc.SetLabels(ctx, event.Data.Repository, issue.Number, rec.Labels); err != nil {
			return fmt.Errorf("restoring labels: %w", err)
		}
		msg := "This ticket is already assigned to someone else; it was returned to its previous state."
		if hasLabel(issue.Labels, e.labels.NotReady) {
			msg = fmt.Sprintf("This ticket is not ready to be worked on yet. It will be available once it carries the %s label.", e.labels.OpenForPickup)
		}
		return e.rollbackAssignee(ctx, tc, event.Data.Repository, issue.Number, assigneeID, false, msg)
	}

	memberID, err := e.platform.GetMemberID(ctx, handle)
	if err != nil {
		return fmt.Errorf("resolving platform member: %w", err)
	}
	if err := e.platform.AddResource(ctx, *rec.ChallengeID, challenge.Resource{
		RoleID:   e.topcoder.RegistrantRole,
		MemberID: memberID,
		Handle:   handle,
	}); err != nil {
		return fmt.Errorf("registering assignee on challenge: %w", err)
	}

	now := time.Now().Unix()
	newLabels := replaceLabels(issue.Labels, []string{e.labels.OpenForPickup}, e.labels.Assigned)
	if _, err := e.records.Update(ctx, e.issueKey(issue), store.IssueRecordUpdate{
		Assignee:   logger.Ptr(&handle),
		AssignedAt: logger.Ptr(&now),
		Labels:     newLabels,
	}); err != nil {
		return fmt.Errorf("persisting assignee: %w", err)
	}
	if err := tc.SetLabels(ctx, event.Data.Repository, issue.Number, newLabels); err != nil {
		return fmt.Errorf("applying assigned label: %w", err)
	}

	comment := fmt.Sprintf("Contest %s has been updated - it has been assigned to %s.", e.contestURL(*rec.ChallengeID), handle)
	if err := tc.CreateComment(ctx, event.Data.Repository, issue.Number, comment); err != nil {
		return fmt.Errorf("posting assignment comment: %w", err)
	}

	slog.InfoContext(ctx, "assignee registered", slog.String("handle", handle))
	return nil
}

// handleIssueUnassigned removes the stored assignee from the challenge when
// possible. The record's assignee/assignedAt fields are cleared regardless of
// whether the remote removal happened, as long as the record itself resolved.
func (e *Engine) handleIssueUnassigned(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tcx.engine.unassigned"})

	rec, err := e.ensureChallengeExists(ctx, tc, event, issue)
	if err != nil {
		return err
	}

	var removeErr error
	if rec.Assignee != nil {
		removeErr = e.removeAssigneeResource(ctx, tc, event, issue, rec)
		if removeErr != nil {
			slog.ErrorContext(ctx, "removing assignee from challenge failed", slog.Any("error", removeErr))
		}
	}

	// Unconditional once the record resolved: the local view must not keep
	// claiming an assignee the tracker no longer shows.
	if _, err := e.records.Update(ctx, e.issueKey(issue), store.IssueRecordUpdate{
		Assignee:   logger.Ptr[*string](nil),
		AssignedAt: logger.Ptr[*int64](nil),
	}); err != nil {
		return fmt.Errorf("clearing assignee: %w", err)
	}
	return removeErr
}

func (e *Engine) removeAssigneeResource(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue, rec *model.IssueRecord) error {
	userID, err := tc.GetUserIDByLogin(ctx, *rec.Assignee)
	if err != nil {
		return fmt.Errorf("resolving stored assignee: %w", err)
	}
	handle, err := e.users.GetTCUserName(ctx, issue.Provider, userID)
	if err != nil {
		if errors.Is(err, usermap.ErrNotMapped) {
			slog.InfoContext(ctx, "stored assignee has no platform mapping, skipping resource removal")
			return nil
		}
		return fmt.Errorf("resolving assignee handle: %w", err)
	}

	memberID, err := e.platform.GetMemberID(ctx, handle)
	if err != nil {
		return fmt.Errorf("resolving platform member: %w", err)
	}
	if err := e.platform.RemoveResource(ctx, *rec.ChallengeID, challenge.Resource{
		RoleID:   e.topcoder.RegistrantRole,
		MemberID: memberID,
		Handle:   handle,
	}); err != nil {
		return fmt.Errorf("removing challenge resource: %w", err)
	}

	newLabels := replaceLabels(issue.Labels, []string{e.labels.Assigned}, e.labels.OpenForPickup)
	if err := tc.SetLabels(ctx, event.Data.Repository, issue.Number, newLabels); err != nil {
		return fmt.Errorf("restoring open-for-pickup label: %w", err)
	}

	comment := fmt.Sprintf("Contest %s has been updated - %s has been unassigned.", e.contestURL(*rec.ChallengeID), handle)
	if err := tc.CreateComment(ctx, event.Data.Repository, issue.Number, comment); err != nil {
		return fmt.Errorf("posting unassignment comment: %w", err)
	}
	return nil
}

// handleIssueLabelUpdated mirrors the tracker's label set onto the record.
func (e *Engine) handleIssueLabelUpdated(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tcx.engine.labels"})

	if _, err := e.ensureChallengeExists(ctx, tc, event, issue); err != nil {
		return err
	}
	if _, err := e.records.Update(ctx, e.issueKey(issue), store.IssueRecordUpdate{
		Labels: issue.Labels,
	}); err != nil {
		return fmt.Errorf("persisting labels: %w", err)
	}
	return nil
}

// handleIssueClosed drives the payout path. It activates the challenge with
// the winner and copilot registered, then either closes it for payment or
// schedules a delayed cancellation when the fix was not accepted or the prize
// is zero. The returned Outcome carries the sticky payment flag.
func (e *Engine) handleIssueClosed(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) (Outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tcx.engine.closed"})

	if event.PaymentSuccessful {
		slog.InfoContext(ctx, "payment already completed, skipping")
		return Outcome{PaymentSuccessful: true}, nil
	}

	rec, err := e.ensureChallengeExists(ctx, tc, event, issue)
	if err != nil {
		return Outcome{}, err
	}

	closeWithoutPayment := false
	if !hasLabel(issue.Labels, e.labels.FixAccepted) {
		msg := fmt.Sprintf("This ticket was closed without the %s label, so it will not be paid out. Reopen it, add the label, and close it again to process payment.", e.labels.FixAccepted)
		if err := tc.CreateComment(ctx, event.Data.Repository, issue.Number, msg); err != nil {
			return Outcome{}, fmt.Errorf("posting fix-not-accepted comment: %w", err)
		}
		closeWithoutPayment = true
	}
	if issue.PrimaryPrize() == 0 {
		closeWithoutPayment = true
	}

	if issue.AssigneeID == nil {
		slog.InfoContext(ctx, "issue closed without an assignee, nothing to pay")
		return Outcome{}, nil
	}
	if hasLabel(issue.Labels, e.labels.Paid) {
		slog.InfoContext(ctx, "issue already marked paid, skipping")
		return Outcome{}, nil
	}

	handle, err := e.users.GetTCUserName(ctx, issue.Provider, *issue.AssigneeID)
	if err != nil {
		if errors.Is(err, usermap.ErrNotMapped) {
			// Closing without a valid payee is invalid; send the ticket back.
			return Outcome{}, e.rollbackAssignee(ctx, tc, event.Data.Repository, issue.Number, *issue.AssigneeID, true, "")
		}
		return Outcome{}, fmt.Errorf("resolving winner handle: %w", err)
	}

	project, err := e.projects.GetByRepoURL(ctx, issue.RepoURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{}, &NotFoundError{Kind: "project mapping", Key: issue.RepoURL}
		}
		return Outcome{}, fmt.Errorf("looking up project: %w", err)
	}
	billingID, err := e.resolveBillingAccount(ctx, project)
	if err != nil {
		return Outcome{}, err
	}

	// Prizes must be resent together with the billing account id or the
	// platform rejects activation.
	if err := e.platform.UpdateChallenge(ctx, *rec.ChallengeID, challenge.ChallengePatch{
		Prizes:           issue.Prizes,
		BillingAccountID: &billingID,
	}); err != nil {
		return Outcome{}, fmt.Errorf("attaching billing account: %w", err)
	}

	winnerID, err := e.platform.GetMemberID(ctx, handle)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving winner member id: %w", err)
	}
	copilotID, err := e.platform.GetMemberID(ctx, event.Copilot)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving copilot member id: %w", err)
	}

	if err := e.platform.AddResource(ctx, *rec.ChallengeID, challenge.Resource{
		RoleID:   e.topcoder.CopilotRoleID,
		MemberID: copilotID,
		Handle:   event.Copilot,
	}); err != nil {
		return Outcome{}, fmt.Errorf("adding copilot resource: %w", err)
	}
	if err := e.platform.AddResource(ctx, *rec.ChallengeID, challenge.Resource{
		RoleID:   e.topcoder.RegistrantRole,
		MemberID: winnerID,
		Handle:   handle,
	}); err != nil {
		return Outcome{}, fmt.Errorf("adding winner resource: %w", err)
	}

	if err := e.platform.ActivateChallenge(ctx, *rec.ChallengeID); err != nil {
		return Outcome{}, fmt.Errorf("activating challenge: %w", err)
	}

	if closeWithoutPayment {
		e.scheduler.ScheduleCancel(*rec.ChallengeID)
		return Outcome{}, nil
	}

	if err := e.platform.CloseChallenge(ctx, *rec.ChallengeID, winnerID); err != nil {
		return Outcome{}, fmt.Errorf("closing challenge: %w", err)
	}
	outcome := Outcome{PaymentSuccessful: true}
	slog.InfoContext(ctx, "challenge closed for payment", slog.String("winner", handle))

	// The payout is complete at this point. Label and paid-marking failures
	// are reported but never undo the close.
	newLabels := replaceLabels(issue.Labels, []string{e.labels.OpenForPickup, e.labels.Assigned}, e.labels.Assigned)
	if _, err := e.records.Update(ctx, e.issueKey(issue), store.IssueRecordUpdate{
		Labels: newLabels,
	}); err != nil {
		return outcome, fmt.Errorf("persisting closed labels: %w", err)
	}
	if err := tc.MarkAsPaid(ctx, event.Data.Repository, issue.Number, *rec.ChallengeID, newLabels); err != nil {
		return outcome, fmt.Errorf("marking issue paid: %w", err)
	}
	return outcome, nil
}

func (e *Engine) resolveBillingAccount(ctx context.Context, project *model.Project) (string, error) {
	if project.BillingAccountID != nil && *project.BillingAccountID != "" {
		return *project.BillingAccountID, nil
	}
	billingID, err := e.platform.GetBillingAccountID(ctx, project.TCDirectID)
	if err != nil {
		return "", fmt.Errorf("resolving billing account: %w", err)
	}
	if billingID == "" {
		return "", &NotFoundError{Kind: "billing account", Key: project.TCDirectID}
	}
	return billingID, nil
}

// handleComment reacts to bid commands in issue comments. Bids trigger an
// email nudge; accepting a bid rewrites the title prize and assigns the
// bidder, leaving the record/challenge reconciliation to the follow-up
// issue.updated and issue.assigned events.
func (e *Engine) handleComment(ctx context.Context, tc tracker.Client, event *domain.Event, issue *domain.ParsedIssue) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tcx.engine.comment"})

	if event.Data.Comment == nil {
		return &ValidationError{Reason: "comment event without a comment"}
	}

	parsed, err := parser.ParseComment(event.Data.Comment.Body)
	if err != nil {
		return err
	}

	if parsed.IsBid {
		commenter, err := tc.GetUsernameByID(ctx, event.Data.Comment.User.ID)
		if err != nil {
			return fmt.Errorf("resolving commenter: %w", err)
		}
		if err := e.notifier.NotifyBid(event.Data.Repository.FullName, issue.Number, commenter, *parsed.BidAmount); err != nil {
			return err
		}
		slog.InfoContext(ctx, "bid notification sent",
			slog.String("commenter", commenter), slog.Int("amount", *parsed.BidAmount))
	}

	if parsed.IsAcceptBid {
		// Comment events carry the raw title; strip any existing prize tag so
		// the accepted amount replaces it instead of stacking in front of it.
		newTitle := fmt.Sprintf("[$%d] %s", *parsed.AcceptedBidAmount, parser.StripPrizeTag(issue.Title))
		if err := tc.UpdateIssueTitle(ctx, event.Data.Repository, issue.Number, newTitle); err != nil {
			return fmt.Errorf("rewriting title for accepted bid: %w", err)
		}
		if err := tc.AssignUser(ctx, event.Data.Repository, issue.Number, *parsed.AssignedUser); err != nil {
			return fmt.Errorf("assigning accepted bidder: %w", err)
		}
		slog.InfoContext(ctx, "bid accepted",
			slog.String("user", *parsed.AssignedUser), slog.Int("amount", *parsed.AcceptedBidAmount))
	}

	return nil
}
