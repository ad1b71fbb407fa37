package tracker

import (
	"context"
	"fmt"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
	"github.com/lalalland/topcoder-x-processor/internal/model"
)

// Client is the single issue-tracker capability the engine talks to. One
// implementation per provider; the worker selects the implementation once
// per event instead of re-branching on provider at every call site.
type Client interface {
	CreateComment(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, body string) error
	AddLabels(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, labels []string) error
	SetLabels(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, labels []string) error
	AssignUser(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, login string) error
	RemoveAssign(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, login string) error
	GetUsernameByID(ctx context.Context, userID int64) (string, error)
	GetUserIDByLogin(ctx context.Context, login string) (int64, error)
	UpdateIssueTitle(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, title string) error
	ReopenIssue(ctx context.Context, repo domain.RepositoryPayload, issueNumber int) error

	// MarkAsPaid applies the paid label on top of the given label set and
	// posts the payment confirmation comment.
	MarkAsPaid(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, challengeID string, labels []string) error
}

// Factory resolves the tracker client for a provider.
type Factory interface {
	ForProvider(provider model.Provider) (Client, error)
}

type factory struct {
	github Client
	gitlab Client
}

// NewFactory wires the per-provider clients. A nil client means the provider
// is not configured on this deployment.
func NewFactory(github, gitlab Client) Factory {
	return &factory{github: github, gitlab: gitlab}
}

func (f *factory) ForProvider(provider model.Provider) (Client, error) {
	switch provider {
	case model.ProviderGitHub:
		if f.github == nil {
			return nil, fmt.Errorf("github tracker is not configured")
		}
		return f.github, nil
	case model.ProviderGitLab:
		if f.gitlab == nil {
			return nil, fmt.Errorf("gitlab tracker is not configured")
		}
		return f.gitlab, nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}
