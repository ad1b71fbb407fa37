package challenge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lalalland/topcoder-x-processor/core/config"
)

// Client drives the Topcoder challenge API. All methods are plain
// request/response; the engine owns sequencing and failure handling.
type Client interface {
	CreateChallenge(ctx context.Context, spec ChallengeSpec) (string, error)
	UpdateChallenge(ctx context.Context, challengeID string, patch ChallengePatch) error
	ActivateChallenge(ctx context.Context, challengeID string) error
	CloseChallenge(ctx context.Context, challengeID string, winnerID int64) error
	CancelChallenge(ctx context.Context, challengeID string) error
	AddResource(ctx context.Context, challengeID string, resource Resource) error
	RemoveResource(ctx context.Context, challengeID string, resource Resource) error
	GetMemberID(ctx context.Context, handle string) (int64, error)
	GetBillingAccountID(ctx context.Context, projectID string) (string, error)
}

// ChallengeSpec is the creation payload. Task challenges are private to the
// registrant and self-service payable.
type ChallengeSpec struct {
	Name      string `json:"name"`
	Detail    string `json:"detailedRequirements"`
	Prizes    []int  `json:"prizes"`
	ProjectID string `json:"projectId"`
	Task      bool   `json:"task"`
}

// ChallengePatch carries the mutable fields; nil fields are left unchanged.
type ChallengePatch struct {
	Name             *string `json:"name,omitempty"`
	Detail           *string `json:"detailedRequirements,omitempty"`
	Prizes           []int   `json:"prizes,omitempty"`
	BillingAccountID *string `json:"billingAccountId,omitempty"`
}

type Resource struct {
	RoleID   string `json:"roleId"`
	MemberID int64  `json:"memberId"`
	Handle   string `json:"memberHandle,omitempty"`
}

// RemoteError is a rejected platform call.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("topcoder %s: status %d: %s", e.Op, e.Status, e.Body)
}

type client struct {
	http *http.Client
	cfg  config.TopcoderConfig
}

func NewClient(cfg config.TopcoderConfig) Client {
	return &client{
		http: &http.Client{Timeout: 30 * time.Second},
		cfg:  cfg,
	}
}

func (c *client) CreateChallenge(ctx context.Context, spec ChallengeSpec) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.cfg.ChallengeAPIURL, spec, &out, "create challenge"); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create challenge: platform returned no id")
	}
	return out.ID, nil
}

func (c *client) UpdateChallenge(ctx context.Context, challengeID string, patch ChallengePatch) error {
	return c.do(ctx, http.MethodPatch, c.challengeURL(challengeID), patch, nil, "update challenge")
}

func (c *client) ActivateChallenge(ctx context.Context, challengeID string) error {
	body := map[string]string{"status": "Active"}
	return c.do(ctx, http.MethodPatch, c.challengeURL(challengeID), body, nil, "activate challenge")
}

func (c *client) CloseChallenge(ctx context.Context, challengeID string, winnerID int64) error {
	body := map[string]any{"status": "Completed", "winnerId": winnerID}
	return c.do(ctx, http.MethodPatch, c.challengeURL(challengeID), body, nil, "close challenge")
}

func (c *client) CancelChallenge(ctx context.Context, challengeID string) error {
	body := map[string]string{"status": "Cancelled"}
	return c.do(ctx, http.MethodPatch, c.challengeURL(challengeID), body, nil, "cancel challenge")
}

func (c *client) AddResource(ctx context.Context, challengeID string, resource Resource) error {
	err := c.do(ctx, http.MethodPost, c.challengeURL(challengeID)+"/resources", resource, nil, "add resource")
	// Duplicate registration is fine: the contract is idempotent-on-duplicate.
	var remoteErr *RemoteError
	if asRemote(err, &remoteErr) && remoteErr.Status == http.StatusConflict {
		return nil
	}
	return err
}

func (c *client) RemoveResource(ctx context.Context, challengeID string, resource Resource) error {
	return c.do(ctx, http.MethodDelete, c.challengeURL(challengeID)+"/resources", resource, nil, "remove resource")
}

func (c *client) GetMemberID(ctx context.Context, handle string) (int64, error) {
	var out struct {
		UserID int64 `json:"userId"`
	}
	endpoint := c.cfg.MemberAPIURL + "/" + url.PathEscape(handle)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out, "get member"); err != nil {
		return 0, err
	}
	return out.UserID, nil
}

func (c *client) GetBillingAccountID(ctx context.Context, projectID string) (string, error) {
	var out struct {
		BillingAccountID string `json:"billingAccountId"`
	}
	endpoint := c.cfg.ProjectAPIURL + "/" + url.PathEscape(projectID) + "/billingAccount"
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out, "get billing account"); err != nil {
		return "", err
	}
	return out.BillingAccountID, nil
}

func (c *client) challengeURL(challengeID string) string {
	return c.cfg.ChallengeAPIURL + "/" + url.PathEscape(challengeID)
}

func (c *client) do(ctx context.Context, method, endpoint string, in, out any, op string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.M2MToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &RemoteError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decoding response: %w", op, err)
		}
	}
	return nil
}

func asRemote(err error, target **RemoteError) bool {
	if err == nil {
		return false
	}
	re, ok := err.(*RemoteError)
	if !ok {
		return false
	}
	*target = re
	return true
}
