package usermap

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalalland/topcoder-x-processor/internal/model"
	"github.com/lalalland/topcoder-x-processor/internal/store"
)

// ErrNotMapped means the tracker-side user never linked a Topcoder handle.
var ErrNotMapped = errors.New("user has no topcoder mapping")

// Service resolves tracker identities to Topcoder handles and repositories
// to their copilots.
type Service interface {
	GetTCUserName(ctx context.Context, provider model.Provider, providerUserID int64) (string, error)
	GetRepositoryCopilot(ctx context.Context, repoURL string) (string, error)
}

type service struct {
	mappings store.UserMappingStore
	projects store.ProjectStore
}

func NewService(mappings store.UserMappingStore, projects store.ProjectStore) Service {
	return &service{mappings: mappings, projects: projects}
}

func (s *service) GetTCUserName(ctx context.Context, provider model.Provider, providerUserID int64) (string, error) {
	mapping, err := s.mappings.GetByProviderUserID(ctx, provider, providerUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%s user %d: %w", provider, providerUserID, ErrNotMapped)
		}
		return "", fmt.Errorf("looking up %s user %d: %w", provider, providerUserID, err)
	}
	return mapping.TopcoderHandle, nil
}

func (s *service) GetRepositoryCopilot(ctx context.Context, repoURL string) (string, error) {
	project, err := s.projects.GetByRepoURL(ctx, repoURL)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("repository %s has no project mapping: %w", repoURL, err)
		}
		return "", fmt.Errorf("looking up project for %s: %w", repoURL, err)
	}
	if project.Copilot == "" {
		return "", fmt.Errorf("project %d has no copilot", project.ID)
	}
	return project.Copilot, nil
}
