package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseError reports input that does not match a required pattern. It is
// terminal for the event: no remote mutation is attempted once raised.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s (input: %q)", e.Reason, e.Input)
}

var (
	prizeTokenRe     = regexp.MustCompile(`\$(\d+)`)
	leadingBracketRe = regexp.MustCompile(`^(\s*\[[^\]]*\])+\s*`)
)

// ParsePrizes extracts the dollar-amount prizes embedded in an issue title,
// e.g. "[$500][$300] Fix bug" -> [500, 300], "Fix bug". Every $<digits>
// token that is eventually followed by a "]" counts, in left-to-right order;
// the leading bracket segment is stripped from the display title. A title
// with no prize token is a ParseError — prize information is mandatory for
// every issue this system processes.
func ParsePrizes(title string) (prizes []int, stripped string, err error) {
	lastBracket := strings.LastIndex(title, "]")
	if lastBracket >= 0 {
		for _, m := range prizeTokenRe.FindAllStringSubmatchIndex(title[:lastBracket], -1) {
			amount, convErr := strconv.Atoi(title[m[2]:m[3]])
			if convErr != nil {
				continue
			}
			prizes = append(prizes, amount)
		}
	}

	if len(prizes) == 0 {
		return nil, "", &ParseError{Input: title, Reason: "no prize found in issue title"}
	}

	stripped = leadingBracketRe.ReplaceAllString(title, "")
	return prizes, stripped, nil
}

// StripPrizeTag removes the leading bracket segment from a title, returning
// the title unchanged when there is none.
func StripPrizeTag(title string) string {
	return leadingBracketRe.ReplaceAllString(title, "")
}
