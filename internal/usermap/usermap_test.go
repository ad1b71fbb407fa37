package usermap_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lalalland/topcoder-x-processor/internal/model"
	"github.com/lalalland/topcoder-x-processor/internal/store"
	"github.com/lalalland/topcoder-x-processor/internal/usermap"
)

type mockMappingStore struct {
	GetByProviderUserIDFunc func(ctx context.Context, provider model.Provider, providerUserID int64) (*model.UserMapping, error)
}

func (m *mockMappingStore) GetByProviderUserID(ctx context.Context, provider model.Provider, providerUserID int64) (*model.UserMapping, error) {
	return m.GetByProviderUserIDFunc(ctx, provider, providerUserID)
}

type mockProjectStore struct {
	GetByRepoURLFunc func(ctx context.Context, repoURL string) (*model.Project, error)
}

func (m *mockProjectStore) GetByRepoURL(ctx context.Context, repoURL string) (*model.Project, error) {
	return m.GetByRepoURLFunc(ctx, repoURL)
}

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		mappings *mockMappingStore
		projects *mockProjectStore
		svc      usermap.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		mappings = &mockMappingStore{
			GetByProviderUserIDFunc: func(_ context.Context, _ model.Provider, _ int64) (*model.UserMapping, error) {
				return &model.UserMapping{TopcoderHandle: "tc_handle"}, nil
			},
		}
		projects = &mockProjectStore{
			GetByRepoURLFunc: func(_ context.Context, _ string) (*model.Project, error) {
				return &model.Project{ID: 12, Copilot: "copilot"}, nil
			},
		}
		svc = usermap.NewService(mappings, projects)
	})

	Describe("GetTCUserName", func() {
		It("returns the mapped handle", func() {
			handle, err := svc.GetTCUserName(ctx, model.ProviderGitHub, 9)
			Expect(err).ToNot(HaveOccurred())
			Expect(handle).To(Equal("tc_handle"))
		})

		It("wraps a missing mapping as ErrNotMapped", func() {
			mappings.GetByProviderUserIDFunc = func(_ context.Context, _ model.Provider, _ int64) (*model.UserMapping, error) {
				return nil, store.ErrNotFound
			}
			_, err := svc.GetTCUserName(ctx, model.ProviderGitHub, 9)
			Expect(errors.Is(err, usermap.ErrNotMapped)).To(BeTrue())
		})
	})

	Describe("GetRepositoryCopilot", func() {
		It("returns the project copilot", func() {
			copilot, err := svc.GetRepositoryCopilot(ctx, "https://github.com/org/repo")
			Expect(err).ToNot(HaveOccurred())
			Expect(copilot).To(Equal("copilot"))
		})

		It("fails when the project carries no copilot", func() {
			projects.GetByRepoURLFunc = func(_ context.Context, _ string) (*model.Project, error) {
				return &model.Project{ID: 12}, nil
			}
			_, err := svc.GetRepositoryCopilot(ctx, "https://github.com/org/repo")
			Expect(err).To(MatchError(ContainSubstring("project 12 has no copilot")))
		})
	})
})
