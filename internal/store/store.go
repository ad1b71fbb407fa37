package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert hits the unique issue key.
	// The conditional insert on (number, provider, repository_id) doubles
	// as the creation lock: the first writer wins, every concurrent writer
	// sees ErrDuplicate.
	ErrDuplicate = errors.New("record already exists")
)

// Stores bundles the typed store implementations over one pool.
type Stores struct {
	issueRecords IssueRecordStore
	projects     ProjectStore
	userMappings UserMappingStore
}

func NewStores(pool *pgxpool.Pool) *Stores {
	return &Stores{
		issueRecords: newIssueRecordStore(pool),
		projects:     newProjectStore(pool),
		userMappings: newUserMappingStore(pool),
	}
}

func (s *Stores) IssueRecords() IssueRecordStore { return s.issueRecords }
func (s *Stores) Projects() ProjectStore         { return s.projects }
func (s *Stores) UserMappings() UserMappingStore { return s.userMappings }
