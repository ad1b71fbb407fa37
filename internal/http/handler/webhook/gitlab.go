package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/model"
	"github.com/lalalland/topcoder-x-processor/internal/queue"
)

// GitLabWebhookHandler ingests GitLab webhooks. Authentication is the shared
// secret GitLab sends in X-Gitlab-Token.
type GitLabWebhookHandler struct {
	token    string
	producer queue.Producer
}

func NewGitLabWebhookHandler(token string, producer queue.Producer) *GitLabWebhookHandler {
	return &GitLabWebhookHandler{
		token:    token,
		producer: producer,
	}
}

func (h *GitLabWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	secretHeader := c.GetHeader("X-Gitlab-Token")
	if secretHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing webhook token"})
		return
	}
	if subtle.ConstantTimeCompare([]byte(secretHeader), []byte(h.token)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var payload gitlabWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	event := mapGitLabPayload(payload)
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "event not supported"})
		return
	}

	if err := validateEvent(event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.producer.Enqueue(ctx, event, traceID(c)); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue gitlab event",
			"error", err, "event_type", event.Type)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue event"})
		return
	}

	slog.InfoContext(ctx, "gitlab webhook enqueued",
		"event_type", event.Type,
		"issue_number", event.Data.Issue.Number,
		"repository", event.Data.Repository.FullName)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func mapGitLabPayload(payload gitlabWebhookPayload) *domain.Event {
	switch payload.ObjectKind {
	case "issue":
		return mapGitLabIssue(payload)
	case "note":
		return mapGitLabNote(payload)
	}
	return nil
}

func mapGitLabIssue(payload gitlabWebhookPayload) *domain.Event {
	var eventType domain.EventType
	switch payload.ObjectAttributes.Action {
	case "open":
		eventType = domain.EventTypeIssueCreated
	case "close":
		eventType = domain.EventTypeIssueClosed
	case "update":
		// GitLab folds assignment and label changes into "update"; the
		// changes block says what actually moved.
		switch {
		case payload.Changes.Assignees != nil:
			if len(payload.ObjectAttributes.AssigneeIDs) > 0 {
				eventType = domain.EventTypeIssueAssigned
			} else {
				eventType = domain.EventTypeIssueUnassigned
			}
		case payload.Changes.Labels != nil:
			eventType = domain.EventTypeIssueLabelUpdated
		default:
			eventType = domain.EventTypeIssueUpdated
		}
	default:
		return nil
	}

	event := &domain.Event{
		Type:     eventType,
		Provider: model.ProviderGitLab,
		Data: domain.EventData{
			Issue:      payload.issuePayload(),
			Repository: payload.repositoryPayload(),
		},
	}
	if eventType == domain.EventTypeIssueAssigned && len(payload.ObjectAttributes.AssigneeIDs) > 0 {
		event.Data.Assignee = &domain.UserRef{ID: payload.ObjectAttributes.AssigneeIDs[0]}
	}
	return event
}

func mapGitLabNote(payload gitlabWebhookPayload) *domain.Event {
	if payload.ObjectAttributes.NoteableType != "Issue" {
		return nil
	}

	event := &domain.Event{
		Type:     domain.EventTypeCommentCreated,
		Provider: model.ProviderGitLab,
		Data: domain.EventData{
			Issue:      payload.nestedIssuePayload(),
			Repository: payload.repositoryPayload(),
			Comment: &domain.CommentPayload{
				ID:   payload.ObjectAttributes.ID,
				Body: payload.ObjectAttributes.Note,
				User: domain.UserRef{ID: payload.User.ID},
			},
		},
	}
	return event
}

type gitlabWebhookPayload struct {
	ObjectKind string `json:"object_kind"`
	User       struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		ID                int64  `json:"id"`
		Name              string `json:"name"`
		PathWithNamespace string `json:"path_with_namespace"`
		WebURL            string `json:"web_url"`
	} `json:"project"`
	ObjectAttributes struct {
		ID           int64   `json:"id"`
		IID          int     `json:"iid"`
		Title        string  `json:"title"`
		Description  string  `json:"description"`
		Action       string  `json:"action"`
		Note         string  `json:"note"`
		NoteableType string  `json:"noteable_type"`
		AuthorID     int64   `json:"author_id"`
		AssigneeIDs  []int64 `json:"assignee_ids"`
	} `json:"object_attributes"`
	Labels []struct {
		Title string `json:"title"`
	} `json:"labels"`
	Changes struct {
		Assignees *json.RawMessage `json:"assignees"`
		Labels    *json.RawMessage `json:"labels"`
	} `json:"changes"`
	Issue struct {
		ID          int64  `json:"id"`
		IID         int    `json:"iid"`
		Title       string `json:"title"`
		Description string `json:"description"`
		AuthorID    int64  `json:"author_id"`
	} `json:"issue"`
}

func (p gitlabWebhookPayload) issuePayload() domain.IssuePayload {
	out := domain.IssuePayload{
		Number: p.ObjectAttributes.IID,
		Title:  p.ObjectAttributes.Title,
		Body:   p.ObjectAttributes.Description,
		Owner:  domain.UserRef{ID: p.ObjectAttributes.AuthorID},
	}
	for _, label := range p.Labels {
		out.Labels = append(out.Labels, label.Title)
	}
	for _, id := range p.ObjectAttributes.AssigneeIDs {
		out.Assignees = append(out.Assignees, domain.UserRef{ID: id})
	}
	return out
}

func (p gitlabWebhookPayload) nestedIssuePayload() domain.IssuePayload {
	return domain.IssuePayload{
		Number: p.Issue.IID,
		Title:  p.Issue.Title,
		Body:   p.Issue.Description,
		Owner:  domain.UserRef{ID: p.Issue.AuthorID},
	}
}

func (p gitlabWebhookPayload) repositoryPayload() domain.RepositoryPayload {
	return domain.RepositoryPayload{
		ID:       p.Project.ID,
		Name:     p.Project.Name,
		FullName: p.Project.PathWithNamespace,
		URL:      p.Project.WebURL,
	}
}
