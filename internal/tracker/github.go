package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v45/github"
	"golang.org/x/oauth2"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
)

type gitHubClient struct {
	client  *github.Client
	paid    string
	linkFmt string
}

// NewGitHubClient builds the GitHub tracker client. The token is the
// copilot bot account's access token; linkFmt formats a challenge id into
// a human-facing contest URL for the payment comment.
func NewGitHubClient(token, paidLabel, linkFmt string) Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &gitHubClient{
		client:  github.NewClient(tc),
		paid:    paidLabel,
		linkFmt: linkFmt,
	}
}

func splitFullName(repo domain.RepositoryPayload) (owner, name string, err error) {
	parts := strings.SplitN(repo.FullName, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed repository full name %q", repo.FullName)
	}
	return parts[0], parts[1], nil
}

func (c *gitHubClient) CreateComment(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, body string) error {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.CreateComment(ctx, owner, name, issueNumber, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("creating github comment: %w", err)
	}
	return nil
}

func (c *gitHubClient) AddLabels(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, labels []string) error {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.AddLabelsToIssue(ctx, owner, name, issueNumber, labels)
	if err != nil {
		return fmt.Errorf("adding github labels: %w", err)
	}
	return nil
}

func (c *gitHubClient) SetLabels(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, labels []string) error {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.ReplaceLabelsForIssue(ctx, owner, name, issueNumber, labels)
	if err != nil {
		return fmt.Errorf("replacing github labels: %w", err)
	}
	return nil
}

func (c *gitHubClient) AssignUser(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, login string) error {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.AddAssignees(ctx, owner, name, issueNumber, []string{login})
	if err != nil {
		return fmt.Errorf("assigning github user: %w", err)
	}
	return nil
}

func (c *gitHubClient) RemoveAssign(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, login string) error {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.RemoveAssignees(ctx, owner, name, issueNumber, []string{login})
	if err != nil {
		return fmt.Errorf("unassigning github user: %w", err)
	}
	return nil
}

func (c *gitHubClient) GetUsernameByID(ctx context.Context, userID int64) (string, error) {
	user, _, err := c.client.Users.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("fetching github user %d: %w", userID, err)
	}
	return user.GetLogin(), nil
}

func (c *gitHubClient) GetUserIDByLogin(ctx context.Context, login string) (int64, error) {
	user, _, err := c.client.Users.Get(ctx, login)
	if err != nil {
		return 0, fmt.Errorf("fetching github user %q: %w", login, err)
	}
	return user.GetID(), nil
}

func (c *gitHubClient) UpdateIssueTitle(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, title string) error {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.Edit(ctx, owner, name, issueNumber, &github.IssueRequest{
		Title: github.String(title),
	})
	if err != nil {
		return fmt.Errorf("updating github issue title: %w", err)
	}
	return nil
}

func (c *gitHubClient) ReopenIssue(ctx context.Context, repo domain.RepositoryPayload, issueNumber int) error {
	owner, name, err := splitFullName(repo)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.Edit(ctx, owner, name, issueNumber, &github.IssueRequest{
		State: github.String("open"),
	})
	if err != nil {
		return fmt.Errorf("reopening github issue: %w", err)
	}
	return nil
}

func (c *gitHubClient) MarkAsPaid(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, challengeID string, labels []string) error {
	withPaid := appendLabel(labels, c.paid)
	if err := c.SetLabels(ctx, repo, issueNumber, withPaid); err != nil {
		return err
	}
	comment := fmt.Sprintf("Payment task has been updated: %s", fmt.Sprintf(c.linkFmt, challengeID))
	return c.CreateComment(ctx, repo, issueNumber, comment)
}

func appendLabel(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	out := make([]string, 0, len(labels)+1)
	out = append(out, labels...)
	return append(out, label)
}
