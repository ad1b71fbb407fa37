package tracker_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/tracker"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

var _ = Describe("GitLabClient", func() {
	var (
		requests []recordedRequest
		srv      *httptest.Server
		client   tracker.Client
		ctx      context.Context
		repo     domain.RepositoryPayload
	)

	record := func(r *http.Request) {
		req := recordedRequest{Method: r.Method, Path: r.URL.Path}
		if raw, err := io.ReadAll(r.Body); err == nil && len(raw) > 0 {
			_ = json.Unmarshal(raw, &req.Body)
		}
		requests = append(requests, req)
	}

	BeforeEach(func() {
		ctx = context.Background()
		repo = domain.RepositoryPayload{ID: 77, FullName: "org/repo"}
		requests = nil

		mux := http.NewServeMux()
		mux.HandleFunc("/api/v4/projects/77/issues/5/notes", func(w http.ResponseWriter, r *http.Request) {
			record(r)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id": 1}`))
		})
		mux.HandleFunc("/api/v4/projects/77/issues/5", func(w http.ResponseWriter, r *http.Request) {
			record(r)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id": 5, "iid": 5}`))
		})
		mux.HandleFunc("/api/v4/users", func(w http.ResponseWriter, r *http.Request) {
			record(r)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[{"id": 9, "username": "alice"}]`))
		})
		mux.HandleFunc("/api/v4/users/9", func(w http.ResponseWriter, r *http.Request) {
			record(r)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id": 9, "username": "alice"}`))
		})
		srv = httptest.NewServer(mux)

		var err error
		client, err = tracker.NewGitLabClient("token", srv.URL, "tcx_Paid", "https://direct.example.com/%s")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		srv.Close()
	})

	It("posts a comment as an issue note", func() {
		Expect(client.CreateComment(ctx, repo, 5, "hello")).To(Succeed())
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Method).To(Equal(http.MethodPost))
		Expect(requests[0].Path).To(Equal("/api/v4/projects/77/issues/5/notes"))
		Expect(requests[0].Body).To(HaveKeyWithValue("body", "hello"))
	})

	It("assigns a user by resolving the login first", func() {
		Expect(client.AssignUser(ctx, repo, 5, "alice")).To(Succeed())
		Expect(requests).To(HaveLen(2))
		Expect(requests[0].Path).To(Equal("/api/v4/users"))
		Expect(requests[1].Method).To(Equal(http.MethodPut))
		Expect(requests[1].Path).To(Equal("/api/v4/projects/77/issues/5"))
		Expect(requests[1].Body).To(HaveKeyWithValue("assignee_ids", []any{float64(9)}))
	})

	It("clears the assignee list on unassign", func() {
		Expect(client.RemoveAssign(ctx, repo, 5, "alice")).To(Succeed())
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Body).To(HaveKeyWithValue("assignee_ids", []any{}))
	})

	It("resolves a username from a user id", func() {
		username, err := client.GetUsernameByID(ctx, 9)
		Expect(err).ToNot(HaveOccurred())
		Expect(username).To(Equal("alice"))
		Expect(requests[0].Path).To(Equal("/api/v4/users/9"))
	})
})
