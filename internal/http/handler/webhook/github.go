package webhook

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v45/github"
	"go.opentelemetry.io/otel/trace"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/model"
	"github.com/lalalland/topcoder-x-processor/internal/queue"
)

// GitHubWebhookHandler ingests GitHub webhooks, normalizes them into
// canonical events, and puts them on the stream. Signature validation uses
// the HMAC secret configured on the webhook.
type GitHubWebhookHandler struct {
	secret   []byte
	producer queue.Producer
}

func NewGitHubWebhookHandler(secret string, producer queue.Producer) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		secret:   []byte(secret),
		producer: producer,
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := github.ValidatePayload(c.Request, h.secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	hook, err := github.ParseWebHook(github.WebHookType(c.Request), payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	var event *domain.Event
	switch hook := hook.(type) {
	case *github.IssuesEvent:
		event = mapIssuesEvent(hook)
	case *github.IssueCommentEvent:
		event = mapIssueCommentEvent(hook)
	case *github.PingEvent:
		c.JSON(http.StatusOK, gin.H{"status": "pong"})
		return
	}

	if event == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "event not supported"})
		return
	}

	if err := validateEvent(event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.producer.Enqueue(ctx, event, traceID(c)); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue github event",
			"error", err, "event_type", event.Type)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue event"})
		return
	}

	slog.InfoContext(ctx, "github webhook enqueued",
		"event_type", event.Type,
		"issue_number", event.Data.Issue.Number,
		"repository", event.Data.Repository.FullName)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func mapIssuesEvent(ev *github.IssuesEvent) *domain.Event {
	var eventType domain.EventType
	switch ev.GetAction() {
	case "opened":
		eventType = domain.EventTypeIssueCreated
	case "edited":
		eventType = domain.EventTypeIssueUpdated
	case "closed":
		eventType = domain.EventTypeIssueClosed
	case "assigned":
		eventType = domain.EventTypeIssueAssigned
	case "unassigned":
		eventType = domain.EventTypeIssueUnassigned
	case "labeled", "unlabeled":
		eventType = domain.EventTypeIssueLabelUpdated
	default:
		return nil
	}

	event := &domain.Event{
		Type:     eventType,
		Provider: model.ProviderGitHub,
		Data: domain.EventData{
			Issue:      mapIssue(ev.GetIssue()),
			Repository: mapRepository(ev.GetRepo()),
		},
	}
	if ev.Assignee != nil {
		event.Data.Assignee = &domain.UserRef{ID: ev.GetAssignee().GetID()}
	}
	return event
}

func mapIssueCommentEvent(ev *github.IssueCommentEvent) *domain.Event {
	var eventType domain.EventType
	switch ev.GetAction() {
	case "created":
		eventType = domain.EventTypeCommentCreated
	case "edited":
		eventType = domain.EventTypeCommentUpdated
	default:
		return nil
	}

	return &domain.Event{
		Type:     eventType,
		Provider: model.ProviderGitHub,
		Data: domain.EventData{
			Issue:      mapIssue(ev.GetIssue()),
			Repository: mapRepository(ev.GetRepo()),
			Comment: &domain.CommentPayload{
				ID:   ev.GetComment().GetID(),
				Body: ev.GetComment().GetBody(),
				User: domain.UserRef{ID: ev.GetComment().GetUser().GetID()},
			},
		},
	}
}

func mapIssue(issue *github.Issue) domain.IssuePayload {
	out := domain.IssuePayload{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		Owner:  domain.UserRef{ID: issue.GetUser().GetID()},
	}
	for _, label := range issue.Labels {
		out.Labels = append(out.Labels, label.GetName())
	}
	for _, assignee := range issue.Assignees {
		out.Assignees = append(out.Assignees, domain.UserRef{ID: assignee.GetID()})
	}
	return out
}

func mapRepository(repo *github.Repository) domain.RepositoryPayload {
	return domain.RepositoryPayload{
		ID:       repo.GetID(),
		Name:     repo.GetName(),
		FullName: repo.GetFullName(),
		URL:      repo.GetHTMLURL(),
	}
}

func traceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
