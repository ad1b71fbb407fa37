package webhook_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/http/handler/webhook"
	"github.com/lalalland/topcoder-x-processor/internal/model"
)

type fakeProducer struct {
	events []*domain.Event
	err    error
}

func (f *fakeProducer) Enqueue(_ context.Context, event *domain.Event, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

var _ = Describe("GitLabWebhookHandler", func() {
	var (
		producer *fakeProducer
		router   *gin.Engine
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		producer = &fakeProducer{}
		handler := webhook.NewGitLabWebhookHandler("secret-token", producer)
		router = gin.New()
		router.POST("/webhooks/gitlab", handler.HandleEvent)
	})

	post := func(token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("X-Gitlab-Token", token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	issueBody := `{
		"object_kind": "issue",
		"user": {"id": 3, "username": "poster"},
		"project": {"id": 77, "name": "repo", "path_with_namespace": "org/repo", "web_url": "https://gitlab.com/org/repo"},
		"object_attributes": {"iid": 5, "title": "[$100] Fix typo", "description": "body", "action": "open", "author_id": 3}
	}`

	It("rejects a missing token", func() {
		rec := post("", issueBody)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(producer.events).To(BeEmpty())
	})

	It("rejects a wrong token", func() {
		rec := post("wrong", issueBody)
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(producer.events).To(BeEmpty())
	})

	It("enqueues an opened issue as issue.created", func() {
		rec := post("secret-token", issueBody)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(producer.events).To(HaveLen(1))

		event := producer.events[0]
		Expect(event.Type).To(Equal(domain.EventTypeIssueCreated))
		Expect(event.Provider).To(Equal(model.ProviderGitLab))
		Expect(event.Data.Issue.Number).To(Equal(5))
		Expect(event.Data.Repository.ID).To(Equal(int64(77)))
		Expect(event.Data.Repository.FullName).To(Equal("org/repo"))
	})

	It("maps an assignee change to issue.assigned", func() {
		body := `{
			"object_kind": "issue",
			"project": {"id": 77, "path_with_namespace": "org/repo", "web_url": "https://gitlab.com/org/repo"},
			"object_attributes": {"iid": 5, "title": "[$100] Fix typo", "action": "update", "assignee_ids": [9]},
			"changes": {"assignees": {"previous": [], "current": [{"id": 9}]}}
		}`
		rec := post("secret-token", body)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(producer.events).To(HaveLen(1))
		Expect(producer.events[0].Type).To(Equal(domain.EventTypeIssueAssigned))
		Expect(producer.events[0].Data.Assignee.ID).To(Equal(int64(9)))
	})

	It("enqueues an issue note as comment.created", func() {
		body := `{
			"object_kind": "note",
			"user": {"id": 3, "username": "poster"},
			"project": {"id": 77, "path_with_namespace": "org/repo", "web_url": "https://gitlab.com/org/repo"},
			"object_attributes": {"id": 900, "note": "/bid $150", "noteable_type": "Issue"},
			"issue": {"iid": 5, "title": "[$100] Fix typo"}
		}`
		rec := post("secret-token", body)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(producer.events).To(HaveLen(1))

		event := producer.events[0]
		Expect(event.Type).To(Equal(domain.EventTypeCommentCreated))
		Expect(event.Data.Comment.Body).To(Equal("/bid $150"))
		Expect(event.Data.Issue.Number).To(Equal(5))
	})

	It("ignores unsupported object kinds", func() {
		rec := post("secret-token", `{"object_kind": "pipeline"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(producer.events).To(BeEmpty())
	})
})
