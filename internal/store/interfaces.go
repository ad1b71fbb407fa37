package store

import (
	"context"

	"github.com/lalalland/topcoder-x-processor/internal/model"
)

// IssueKey identifies an issue record uniquely.
type IssueKey struct {
	Number       int
	Provider     model.Provider
	RepositoryID int64
}

// IssueRecordUpdate is a partial update; nil fields are left untouched.
type IssueRecordUpdate struct {
	Title       *string
	Body        *string
	Prizes      []int
	Labels      []string
	Assignee    **string // outer nil = no change, inner nil = clear
	AssignedAt  **int64  // unix seconds; outer nil = no change, inner nil = clear
	ChallengeID *string
	Status      *model.ChallengeStatus
}

type IssueRecordStore interface {
	// GetByKey returns the record for the issue key, or ErrNotFound.
	GetByKey(ctx context.Context, key IssueKey) (*model.IssueRecord, error)

	// CreatePending inserts a new record in pending status. Returns
	// ErrDuplicate when a record for the key already exists; the insert is
	// the compare-and-swap that serializes concurrent creations.
	CreatePending(ctx context.Context, record *model.IssueRecord) (*model.IssueRecord, error)

	// Update applies a partial update and returns the new row.
	Update(ctx context.Context, key IssueKey, patch IssueRecordUpdate) (*model.IssueRecord, error)

	// Delete removes the record for the key. Deleting a missing record is
	// not an error.
	Delete(ctx context.Context, key IssueKey) error

	// ListByRepository returns all records for a repository, newest first.
	ListByRepository(ctx context.Context, provider model.Provider, repositoryID int64) ([]model.IssueRecord, error)
}

type ProjectStore interface {
	// GetByRepoURL returns the active project mapping for a repository
	// URL, or ErrNotFound.
	GetByRepoURL(ctx context.Context, repoURL string) (*model.Project, error)
}

type UserMappingStore interface {
	// GetByProviderUserID returns the mapping for a tracker-side user id,
	// or ErrNotFound when the user never self-registered.
	GetByProviderUserID(ctx context.Context, provider model.Provider, providerUserID int64) (*model.UserMapping, error)
}
