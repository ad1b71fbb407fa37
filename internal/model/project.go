package model

import "time"

// Project maps a repository URL to a Topcoder direct project. The processor
// treats this table as read-only; rows are managed by the companion UI.
type Project struct {
	ID               int64
	RepoURL          string
	TCDirectID       string
	BillingAccountID *string
	Copilot          string // topcoder handle of the repository's copilot
	Archived         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UserMapping links a tracker-side user id to a topcoder handle. Users create
// their own mapping by self-registering through the companion UI.
type UserMapping struct {
	ID                int64
	Provider          Provider
	ProviderUserID    int64
	ProviderUserLogin string
	TopcoderHandle    string
	CreatedAt         time.Time
}
