package tracker

import (
	"context"
	"fmt"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/lalalland/topcoder-x-processor/internal/domain"
)

type gitLabClient struct {
	client  *gitlab.Client
	paid    string
	linkFmt string
}

// NewGitLabClient builds the GitLab tracker client. baseURL is empty for
// gitlab.com and the instance root for self-hosted installs.
func NewGitLabClient(token, baseURL, paidLabel, linkFmt string) (Client, error) {
	var (
		client *gitlab.Client
		err    error
	)
	if baseURL == "" {
		client, err = gitlab.NewClient(token)
	} else {
		apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	}
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	return &gitLabClient{
		client:  client,
		paid:    paidLabel,
		linkFmt: linkFmt,
	}, nil
}

func (c *gitLabClient) CreateComment(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, body string) error {
	_, _, err := c.client.Notes.CreateIssueNote(int(repo.ID), int64(issueNumber), &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("creating gitlab note: %w", err)
	}
	return nil
}

func (c *gitLabClient) AddLabels(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, labels []string) error {
	addLabels := gitlab.LabelOptions(labels)
	_, _, err := c.client.Issues.UpdateIssue(int(repo.ID), int64(issueNumber), &gitlab.UpdateIssueOptions{
		AddLabels: &addLabels,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("adding gitlab labels: %w", err)
	}
	return nil
}

func (c *gitLabClient) SetLabels(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, labels []string) error {
	setLabels := gitlab.LabelOptions(labels)
	_, _, err := c.client.Issues.UpdateIssue(int(repo.ID), int64(issueNumber), &gitlab.UpdateIssueOptions{
		Labels: &setLabels,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("replacing gitlab labels: %w", err)
	}
	return nil
}

func (c *gitLabClient) AssignUser(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, login string) error {
	userID, err := c.GetUserIDByLogin(ctx, login)
	if err != nil {
		return err
	}
	_, _, err = c.client.Issues.UpdateIssue(int(repo.ID), int64(issueNumber), &gitlab.UpdateIssueOptions{
		AssigneeIDs: &[]int64{userID},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("assigning gitlab user: %w", err)
	}
	return nil
}

func (c *gitLabClient) RemoveAssign(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, _ string) error {
	// GitLab issues carry a single assignee slot for our purposes; clearing
	// the list removes whoever holds it.
	_, _, err := c.client.Issues.UpdateIssue(int(repo.ID), int64(issueNumber), &gitlab.UpdateIssueOptions{
		AssigneeIDs: &[]int64{},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("unassigning gitlab user: %w", err)
	}
	return nil
}

func (c *gitLabClient) GetUsernameByID(ctx context.Context, userID int64) (string, error) {
	user, _, err := c.client.Users.GetUser(userID, gitlab.GetUsersOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("fetching gitlab user %d: %w", userID, err)
	}
	return user.Username, nil
}

func (c *gitLabClient) GetUserIDByLogin(ctx context.Context, login string) (int64, error) {
	users, _, err := c.client.Users.ListUsers(&gitlab.ListUsersOptions{
		Username: gitlab.Ptr(login),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("looking up gitlab user %q: %w", login, err)
	}
	if len(users) == 0 {
		return 0, fmt.Errorf("gitlab user %q not found", login)
	}
	return users[0].ID, nil
}

func (c *gitLabClient) UpdateIssueTitle(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, title string) error {
	_, _, err := c.client.Issues.UpdateIssue(int(repo.ID), int64(issueNumber), &gitlab.UpdateIssueOptions{
		Title: gitlab.Ptr(title),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("updating gitlab issue title: %w", err)
	}
	return nil
}

func (c *gitLabClient) ReopenIssue(ctx context.Context, repo domain.RepositoryPayload, issueNumber int) error {
	_, _, err := c.client.Issues.UpdateIssue(int(repo.ID), int64(issueNumber), &gitlab.UpdateIssueOptions{
		StateEvent: gitlab.Ptr("reopen"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("reopening gitlab issue: %w", err)
	}
	return nil
}

func (c *gitLabClient) MarkAsPaid(ctx context.Context, repo domain.RepositoryPayload, issueNumber int, challengeID string, labels []string) error {
	withPaid := appendLabel(labels, c.paid)
	if err := c.SetLabels(ctx, repo, issueNumber, withPaid); err != nil {
		return err
	}
	comment := fmt.Sprintf("Payment task has been updated: %s", fmt.Sprintf(c.linkFmt, challengeID))
	return c.CreateComment(ctx, repo, issueNumber, comment)
}
