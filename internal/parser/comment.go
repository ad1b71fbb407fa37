package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
)

var (
	bidRe       = regexp.MustCompile(`/bid\s+\$(\d+)`)
	acceptBidRe = regexp.MustCompile(`/accept_bid\s+@(\S+)\s+\$(\d+)`)
)

// ParseComment recognizes the bid commands embedded in a comment body.
// The two commands are independent and may co-occur; each is a ParseError
// when its token is present but the full pattern does not match.
func ParseComment(body string) (*domain.ParsedComment, error) {
	parsed := &domain.ParsedComment{}

	if strings.Contains(body, "/bid") {
		m := bidRe.FindStringSubmatch(body)
		if m == nil {
			return nil, &ParseError{Input: body, Reason: "/bid requires a $<amount>"}
		}
		amount, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, &ParseError{Input: body, Reason: "/bid amount is not a number"}
		}
		parsed.IsBid = true
		parsed.BidAmount = &amount
	}

	if strings.Contains(body, "/accept_bid") {
		m := acceptBidRe.FindStringSubmatch(body)
		if m == nil {
			return nil, &ParseError{Input: body, Reason: "/accept_bid requires @<handle> $<amount>"}
		}
		amount, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, &ParseError{Input: body, Reason: "/accept_bid amount is not a number"}
		}
		handle := m[1]
		parsed.IsAcceptBid = true
		parsed.AssignedUser = &handle
		parsed.AcceptedBidAmount = &amount
	}

	return parsed, nil
}
