package looplinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Loopline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Proposal represents the API proposal model.
type Proposal struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Proposer       string   `json:"proposer"`
	Status         string   `json:"status"`
	StepKinds      []string `json:"step_kinds"`
	AutoApproved   bool     `json:"auto_approved"`
	RejectedReason string   `json:"rejected_reason,omitempty"`
	MissionID      string   `json:"mission_id,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// Step represents one unit of mission work.
type Step struct {
	ID               string         `json:"id"`
	MissionID        string         `json:"mission_id"`
	Kind             string         `json:"kind"`
	Status           string         `json:"status"`
	AssignedExecutor string         `json:"assigned_executor"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
}

// Mission represents the API mission model.
type Mission struct {
	ID          string   `json:"id"`
	ProposalID  string   `json:"proposal_id"`
	Title       string   `json:"title"`
	Status      string   `json:"status"`
	StepIDs     []string `json:"step_ids"`
	Steps       []Step   `json:"steps,omitempty"`
	CreatedAt   string   `json:"created_at"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID        int64          `json:"id"`
	Source    string         `json:"source"`
	Type      string         `json:"type"`
	Tags      []string       `json:"tags,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"created_at"`
	Processed bool           `json:"processed"`
}

// Status is the loop snapshot.
type Status struct {
	CompanyID         string         `json:"company_id"`
	CompanyName       string         `json:"company_name"`
	ProposalsByStatus map[string]int `json:"proposals_by_status"`
	MissionsByStatus  map[string]int `json:"missions_by_status"`
	StepsByStatus     map[string]int `json:"steps_by_status"`
	StepsByKind       map[string]int `json:"steps_by_kind"`
	Stats             map[string]int `json:"stats"`
	RecentEvents      []Event        `json:"recent_events"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Submit submits a proposal.
func (c *Client) Submit(ctx context.Context, title, proposer string, stepKinds []string, pctx map[string]any) (Proposal, error) {
	body := map[string]any{
		"title":      title,
		"proposer":   proposer,
		"step_kinds": stepKinds,
		"context":    pctx,
	}
	var resp Proposal
	err := c.do(ctx, http.MethodPost, "v0/proposals", body, &resp)
	return resp, err
}

// Approve approves an awaiting proposal.
func (c *Client) Approve(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	endpoint := fmt.Sprintf("v0/proposals/%s/approve", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Proposals lists proposals, optionally filtered by status.
func (c *Client) Proposals(ctx context.Context, status string) ([]Proposal, error) {
	endpoint := "v0/proposals"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Proposal
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetProposal fetches a proposal by id.
func (c *Client) GetProposal(ctx context.Context, id string) (Proposal, error) {
	var resp Proposal
	endpoint := fmt.Sprintf("v0/proposals/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Missions lists missions, optionally filtered by status.
func (c *Client) Missions(ctx context.Context, status string) ([]Mission, error) {
	endpoint := "v0/missions"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Mission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetMission fetches a mission with its steps.
func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	endpoint := fmt.Sprintf("v0/missions/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Status returns the loop snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "v0/status", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
