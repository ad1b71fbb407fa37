package model

import "time"

type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitLab Provider = "gitlab"
)

func (p Provider) Valid() bool {
	return p == ProviderGitHub || p == ProviderGitLab
}

// ChallengeStatus tracks where an issue record stands in the challenge
// creation lifecycle. A record in pending state blocks concurrent creation
// for the same issue key; a record in failed state is treated as absent and
// purged before recreation.
type ChallengeStatus string

const (
	ChallengeCreationPending    ChallengeStatus = "challenge_creation_pending"
	ChallengeCreationSuccessful ChallengeStatus = "challenge_creation_successful"
	ChallengeCreationFailed     ChallengeStatus = "challenge_creation_failed"
)

// IssueRecord is the persisted mapping between a tracker issue and its
// platform challenge. Identity is (Number, Provider, RepositoryID); the
// database enforces at most one record per key.
type IssueRecord struct {
	ID           int64
	Number       int
	Provider     Provider
	RepositoryID int64
	Title        string
	Body         string
	Prizes       []int // first element is the primary/display prize
	Labels       []string
	Assignee     *string
	AssignedAt   *time.Time
	ChallengeID  *string
	Status       ChallengeStatus
	ProjectID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PrimaryPrize returns the display prize, or 0 when no prizes are recorded.
func (r *IssueRecord) PrimaryPrize() int {
	if len(r.Prizes) == 0 {
		return 0
	}
	return r.Prizes[0]
}
