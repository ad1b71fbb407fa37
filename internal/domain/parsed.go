package domain

import "github.com/lalalland/topcoder-x-processor/internal/model"

// ParsedIssue is the normalized view of an inbound issue the engine handlers
// work against. It is derived per event and never persisted.
type ParsedIssue struct {
	Number       int
	Title        string // prize tag already stripped
	Body         string
	Provider     model.Provider
	RepositoryID int64
	RepoFullName string
	RepoURL      string
	ProjectID    string
	Labels       []string
	Prizes       []int
	Assignee     *string // resolved tracker login, when known
	AssigneeID   *int64  // tracker-side user id backing Assignee
}

// PrimaryPrize returns the display prize, or 0 when no prizes were parsed.
func (p *ParsedIssue) PrimaryPrize() int {
	if len(p.Prizes) == 0 {
		return 0
	}
	return p.Prizes[0]
}

// ParsedComment is the command view of a comment body. Both commands are
// independent; a single comment may carry both.
type ParsedComment struct {
	IsBid             bool
	BidAmount         *int
	IsAcceptBid       bool
	AssignedUser      *string
	AcceptedBidAmount *int
}
