package engine_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lalalland/topcoder-x-processor/core/config"
	"github.com/lalalland/topcoder-x-processor/internal/challenge"
	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/engine"
	"github.com/lalalland/topcoder-x-processor/internal/model"
	"github.com/lalalland/topcoder-x-processor/internal/store"
	"github.com/lalalland/topcoder-x-processor/internal/usermap"
)

var testLabels = config.LabelConfig{
	OpenForPickup: "tcx_OpenForPickup",
	NotReady:      "tcx_NotReady",
	Assigned:      "tcx_Assigned",
	FixAccepted:   "tcx_FixAccepted",
	Paid:          "tcx_Paid",
}

var testTopcoder = config.TopcoderConfig{
	DirectURLBase:  "https://www.topcoder.com/challenges",
	CopilotRoleID:  "copilot",
	RegistrantRole: "registrant",
	CancelDelay:    time.Hour,
}

func strPtr(s string) *string { return &s }

func newEvent(eventType domain.EventType, title string, labels []string) *domain.Event {
	return &domain.Event{
		Type:     eventType,
		Provider: model.ProviderGitHub,
		Copilot:  "copilot",
		Data: domain.EventData{
			Issue: domain.IssuePayload{
				Number: 5,
				Title:  title,
				Body:   "do the thing",
				Labels: labels,
			},
			Repository: domain.RepositoryPayload{
				ID:       77,
				Name:     "repo",
				FullName: "org/repo",
				URL:      "https://github.com/org/repo",
			},
		},
	}
}

func successfulRecord(assignee *string, labels []string) *model.IssueRecord {
	return &model.IssueRecord{
		ID:           1,
		Number:       5,
		Provider:     model.ProviderGitHub,
		RepositoryID: 77,
		Title:        "Fix typo",
		Body:         "do the thing",
		Prizes:       []int{100},
		Labels:       labels,
		Assignee:     assignee,
		ChallengeID:  strPtr("ch-1"),
		Status:       model.ChallengeCreationSuccessful,
		ProjectID:    "proj-1",
	}
}

var _ = Describe("Engine", func() {
	var (
		records   *mockIssueRecordStore
		projects  *mockProjectStore
		users     *mockUserMap
		platform  *mockPlatform
		trk       *mockTracker
		notifier  *mockNotifier
		scheduler *engine.CancelScheduler
		eng       *engine.Engine
		ctx       context.Context
	)

	BeforeEach(func() {
		records = &mockIssueRecordStore{}
		projects = &mockProjectStore{}
		users = &mockUserMap{}
		platform = &mockPlatform{}
		trk = &mockTracker{}
		notifier = &mockNotifier{}
		scheduler = engine.NewCancelScheduler(platform, time.Hour)
		eng = engine.New(records, projects, users, platform,
			&mockTrackerFactory{client: trk}, notifier, scheduler, testLabels, testTopcoder)
		ctx = context.Background()
	})

	AfterEach(func() {
		scheduler.Stop()
	})

	Describe("issue created", func() {
		It("creates the challenge and records it", func() {
			var created *model.IssueRecord
			records.CreatePendingFunc = func(_ context.Context, rec *model.IssueRecord) (*model.IssueRecord, error) {
				created = rec
				out := *rec
				out.ID = 1
				out.Status = model.ChallengeCreationPending
				return &out, nil
			}

			_, err := eng.Process(ctx, newEvent(domain.EventTypeIssueCreated, "[$100] Fix typo", nil))
			Expect(err).ToNot(HaveOccurred())

			Expect(created).ToNot(BeNil())
			Expect(created.Prizes).To(Equal([]int{100}))
			Expect(created.Title).To(Equal("Fix typo"))

			Expect(platform.Calls).To(ContainElement("CreateChallenge"))
			Expect(records.Updates).To(HaveLen(1))
			Expect(*records.Updates[0].Status).To(Equal(model.ChallengeCreationSuccessful))
			Expect(*records.Updates[0].ChallengeID).To(Equal("ch-1"))
			Expect(trk.Comments).To(ContainElement(ContainSubstring("Contest")))
		})

		It("rejects a duplicate creation without touching the platform", func() {
			records.CreatePendingFunc = func(_ context.Context, _ *model.IssueRecord) (*model.IssueRecord, error) {
				return nil, store.ErrDuplicate
			}

			_, err := eng.Process(ctx, newEvent(domain.EventTypeIssueCreated, "[$100] Fix typo", nil))
			Expect(err).To(HaveOccurred())
			Expect(platform.Calls).To(BeEmpty())
		})

		It("cleans up the pending record when challenge creation fails", func() {
			platform.CreateChallengeFunc = func(_ context.Context, _ challenge.ChallengeSpec) (string, error) {
				return "", context.DeadlineExceeded
			}

			_, err := eng.Process(ctx, newEvent(domain.EventTypeIssueCreated, "[$100] Fix typo", nil))
			Expect(err).To(HaveOccurred())
			Expect(records.Calls).To(ContainElement("Delete"))
		})
	})

	Describe("ensuring the challenge exists", func() {
		It("requeues while a creation is in flight", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				rec := successfulRecord(nil, nil)
				rec.Status = model.ChallengeCreationPending
				return rec, nil
			}

			_, err := eng.Process(ctx, newEvent(domain.EventTypeIssueLabelUpdated, "[$100] Fix typo", nil))
			Expect(engine.IsTransient(err)).To(BeTrue())
		})

		It("purges a failed record and recreates transparently", func() {
			calls := 0
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				calls++
				if calls == 1 {
					rec := successfulRecord(nil, nil)
					rec.Status = model.ChallengeCreationFailed
					return rec, nil
				}
				return successfulRecord(nil, nil), nil
			}

			_, err := eng.Process(ctx, newEvent(domain.EventTypeIssueLabelUpdated, "[$100] Fix typo", nil))
			Expect(err).ToNot(HaveOccurred())
			Expect(records.Calls).To(ContainElement("Delete"))
			Expect(records.Calls).To(ContainElement("CreatePending"))
			Expect(platform.Calls).To(ContainElement("CreateChallenge"))
		})
	})

	Describe("issue assigned", func() {
		assignEvent := func(labels []string) *domain.Event {
			ev := newEvent(domain.EventTypeIssueAssigned, "[$100] Fix typo", labels)
			ev.Data.Assignee = &domain.UserRef{ID: 7}
			return ev
		}

		It("rolls back an unmapped assignee without reading the record", func() {
			users.GetTCUserNameFunc = func(_ context.Context, _ model.Provider, _ int64) (string, error) {
				return "", usermap.ErrNotMapped
			}

			_, err := eng.Process(ctx, assignEvent([]string{"tcx_OpenForPickup"}))
			Expect(err).ToNot(HaveOccurred())
			Expect(records.Calls).To(BeEmpty())
			Expect(trk.Calls).To(ContainElement("RemoveAssign"))
			Expect(trk.Comments).To(ContainElement(ContainSubstring("sign up")))
		})

		It("never registers on the challenge when open-for-pickup is missing", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				return successfulRecord(nil, []string{"tcx_NotReady"}), nil
			}

			_, err := eng.Process(ctx, assignEvent([]string{"tcx_NotReady"}))
			Expect(err).ToNot(HaveOccurred())
			Expect(platform.Calls).To(BeEmpty())
			Expect(trk.Calls).To(ContainElement("AddLabels"))
			Expect(trk.Calls).To(ContainElement("RemoveAssign"))
		})

		It("registers a mapped assignee on an open ticket", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				return successfulRecord(nil, []string{"tcx_OpenForPickup"}), nil
			}

			_, err := eng.Process(ctx, assignEvent([]string{"tcx_OpenForPickup"}))
			Expect(err).ToNot(HaveOccurred())
			Expect(platform.Calls).To(ContainElement("AddResource"))

			Expect(records.Updates).To(HaveLen(1))
			patch := records.Updates[0]
			Expect(*patch.Assignee).To(Equal(strPtr("tc_handle")))
			Expect(patch.Labels).To(ContainElement("tcx_Assigned"))
			Expect(patch.Labels).ToNot(ContainElement("tcx_OpenForPickup"))
			Expect(trk.Comments).To(ContainElement(ContainSubstring("assigned to tc_handle")))
		})
	})

	Describe("issue unassigned", func() {
		It("clears the stored assignee even when the remote removal fails", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				return successfulRecord(strPtr("alice"), []string{"tcx_Assigned"}), nil
			}
			trk.GetUserIDByLoginFunc = func(_ context.Context, _ string) (int64, error) {
				return 0, context.DeadlineExceeded
			}

			_, err := eng.Process(ctx, newEvent(domain.EventTypeIssueUnassigned, "[$100] Fix typo", []string{"tcx_Assigned"}))
			Expect(err).To(HaveOccurred())

			Expect(records.Updates).To(HaveLen(1))
			patch := records.Updates[0]
			Expect(patch.Assignee).ToNot(BeNil())
			Expect(*patch.Assignee).To(BeNil())
			Expect(patch.AssignedAt).ToNot(BeNil())
			Expect(*patch.AssignedAt).To(BeNil())
		})
	})

	Describe("issue closed", func() {
		closedEvent := func(title string, labels []string) *domain.Event {
			ev := newEvent(domain.EventTypeIssueClosed, title, labels)
			ev.Data.Issue.Assignees = []domain.UserRef{{ID: 7}}
			return ev
		}

		It("skips everything when payment already succeeded", func() {
			ev := closedEvent("[$100] Fix typo", []string{"tcx_FixAccepted"})
			ev.PaymentSuccessful = true

			outcome, err := eng.Process(ctx, ev)
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.PaymentSuccessful).To(BeTrue())
			Expect(records.Calls).To(BeEmpty())
			Expect(platform.Calls).To(BeEmpty())
		})

		It("schedules cancellation for a zero-prize ticket instead of paying", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				return successfulRecord(strPtr("alice"), []string{"tcx_FixAccepted", "tcx_Assigned"}), nil
			}

			outcome, err := eng.Process(ctx, closedEvent("[$0] Fix typo", []string{"tcx_FixAccepted", "tcx_Assigned"}))
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.PaymentSuccessful).To(BeFalse())
			Expect(platform.Calls).To(ContainElement("ActivateChallenge"))
			Expect(platform.Calls).ToNot(ContainElement("CloseChallenge"))
			Expect(scheduler.Revoke("ch-1")).To(BeTrue())
		})

		It("closes with the winner and marks the ticket paid", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				return successfulRecord(strPtr("alice"), []string{"tcx_FixAccepted", "tcx_Assigned"}), nil
			}

			outcome, err := eng.Process(ctx, closedEvent("[$100] Fix typo", []string{"tcx_FixAccepted", "tcx_Assigned"}))
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.PaymentSuccessful).To(BeTrue())
			Expect(platform.Calls).To(ContainElement("CloseChallenge"))
			Expect(trk.Calls).To(ContainElement("MarkAsPaid"))
		})

		It("does nothing when the issue was closed without an assignee", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				return successfulRecord(nil, []string{"tcx_FixAccepted"}), nil
			}

			ev := newEvent(domain.EventTypeIssueClosed, "[$100] Fix typo", []string{"tcx_FixAccepted"})
			outcome, err := eng.Process(ctx, ev)
			Expect(err).ToNot(HaveOccurred())
			Expect(outcome.PaymentSuccessful).To(BeFalse())
			Expect(platform.Calls).To(BeEmpty())
		})

		It("sends an unpaid close back when the winner is unmapped", func() {
			records.GetByKeyFunc = func(_ context.Context, _ store.IssueKey) (*model.IssueRecord, error) {
				return successfulRecord(strPtr("alice"), []string{"tcx_FixAccepted", "tcx_Assigned"}), nil
			}
			users.GetTCUserNameFunc = func(_ context.Context, _ model.Provider, _ int64) (string, error) {
				return "", usermap.ErrNotMapped
			}

			_, err := eng.Process(ctx, closedEvent("[$100] Fix typo", []string{"tcx_FixAccepted", "tcx_Assigned"}))
			Expect(err).ToNot(HaveOccurred())
			Expect(trk.Calls).To(ContainElement("RemoveAssign"))
			Expect(trk.Calls).To(ContainElement("ReopenIssue"))
			Expect(platform.Calls).To(BeEmpty())
		})
	})

	Describe("comments", func() {
		commentEvent := func(body string) *domain.Event {
			ev := newEvent(domain.EventTypeCommentCreated, "Fix typo", nil)
			ev.Data.Comment = &domain.CommentPayload{ID: 9, Body: body, User: domain.UserRef{ID: 3}}
			return ev
		}

		It("notifies on a bid", func() {
			_, err := eng.Process(ctx, commentEvent("/bid $150"))
			Expect(err).ToNot(HaveOccurred())
			Expect(notifier.Bids).To(Equal([]int{150}))
		})

		It("rewrites the title and assigns on an accepted bid", func() {
			_, err := eng.Process(ctx, commentEvent("/accept_bid @alice $200"))
			Expect(err).ToNot(HaveOccurred())
			Expect(trk.Titles).To(Equal([]string{"[$200] Fix typo"}))
			Expect(trk.Calls).To(ContainElement("AssignUser"))
		})

		It("replaces an existing prize tag instead of stacking a second one", func() {
			ev := newEvent(domain.EventTypeCommentCreated, "[$100] Fix typo", nil)
			ev.Data.Comment = &domain.CommentPayload{ID: 9, Body: "/accept_bid @alice $200", User: domain.UserRef{ID: 3}}

			_, err := eng.Process(ctx, ev)
			Expect(err).ToNot(HaveOccurred())
			Expect(trk.Titles).To(Equal([]string{"[$200] Fix typo"}))
		})
	})
})
