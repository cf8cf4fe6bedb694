package skylarksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Skylark HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// ActorID is sent as X-Actor-Id; servers running without auth record it on events.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Pilot represents the API pilot model.
type Pilot struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Skills         []string `json:"skills"`
	Certifications []string `json:"certifications"`
	Location       string   `json:"location"`
	Status         string   `json:"status"`
	CurrentMission *string  `json:"current_mission,omitempty"`
	AvailableFrom  string   `json:"available_from,omitempty"`
	Version        int64    `json:"version"`
}

// Drone represents the API drone model.
type Drone struct {
	ID             string   `json:"id"`
	Model          string   `json:"model"`
	Capabilities   []string `json:"capabilities"`
	Status         string   `json:"status"`
	Location       string   `json:"location"`
	CurrentMission *string  `json:"current_mission,omitempty"`
	MaintenanceDue string   `json:"maintenance_due,omitempty"`
	Version        int64    `json:"version"`
}

// Mission represents the API mission model.
type Mission struct {
	ID                     string   `json:"id"`
	Client                 string   `json:"client"`
	Location               string   `json:"location"`
	RequiredSkills         []string `json:"required_skills"`
	RequiredCertifications []string `json:"required_certifications"`
	StartDate              string   `json:"start_date"`
	EndDate                string   `json:"end_date"`
	Priority               string   `json:"priority"`
	AssignedPilot          *string  `json:"assigned_pilot,omitempty"`
	AssignedDrone          *string  `json:"assigned_drone,omitempty"`
	Status                 string   `json:"status"`
	Version                int64    `json:"version"`
}

type Conflict struct {
	Kind      string   `json:"kind"`
	Severity  string   `json:"severity"`
	Message   string   `json:"message"`
	Entities  []string `json:"entities"`
	MissionID *string  `json:"mission_id,omitempty"`
}

type ConflictReport struct {
	Conflicts []Conflict `json:"conflicts"`
	Errors    int        `json:"errors"`
	Warnings  int        `json:"warnings"`
}

type Validation struct {
	Kind       string     `json:"kind"`
	ResourceID string     `json:"resource_id"`
	MissionID  string     `json:"mission_id"`
	Valid      bool       `json:"valid"`
	Conflicts  []Conflict `json:"conflicts"`
}

type Candidate struct {
	Kind           string   `json:"kind"`
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Status         string   `json:"status"`
	Location       string   `json:"location"`
	CurrentMission *string  `json:"current_mission,omitempty"`
	Score          int      `json:"score"`
	Issues         []string `json:"issues"`
}

type AssignResult struct {
	Validation Validation `json:"validation"`
	Committed  bool       `json:"committed"`
	Forced     bool       `json:"forced"`
	Mission    Mission    `json:"mission"`
	Released   *string    `json:"released,omitempty"`
}

type ReplacementOptions struct {
	MissionID          string      `json:"mission_id"`
	Priority           string      `json:"priority"`
	Kind               string      `json:"kind"`
	Replacing          string      `json:"replacing"`
	Candidates         []Candidate `json:"candidates"`
	NoViableCandidates bool        `json:"no_viable_candidates"`
}

type Execution struct {
	MissionID   string `json:"mission_id"`
	Kind        string `json:"kind"`
	CandidateID string `json:"candidate_id"`
	Forced      bool   `json:"forced"`
}

// Plan is a proposed urgent reassignment.
type Plan struct {
	ID                string               `json:"id"`
	Reason            string               `json:"reason"`
	PilotID           string               `json:"pilot_id,omitempty"`
	DroneID           string               `json:"drone_id,omitempty"`
	Stage             string               `json:"stage"`
	History           []string             `json:"history"`
	MarkedUnavailable bool                 `json:"marked_unavailable"`
	AffectedMissions  []Mission            `json:"affected_missions"`
	Options           []ReplacementOptions `json:"options"`
	Executions        []Execution          `json:"executions"`
}

// Event represents a journal entry.
type Event struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// UrgentRequest starts an urgent reassignment.
type UrgentRequest struct {
	PilotID         string `json:"pilot_id,omitempty"`
	DroneID         string `json:"drone_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	MarkUnavailable bool   `json:"mark_unavailable,omitempty"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsBlocked reports an assignment refused because of error-severity conflicts.
func IsBlocked(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == "assignment_blocked"
}

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) ListPilots(ctx context.Context, filter url.Values) ([]Pilot, error) {
	var resp []Pilot
	err := c.do(ctx, http.MethodGet, withQuery("pilots", filter), nil, &resp)
	return resp, err
}

func (c *Client) ListDrones(ctx context.Context, filter url.Values) ([]Drone, error) {
	var resp []Drone
	err := c.do(ctx, http.MethodGet, withQuery("drones", filter), nil, &resp)
	return resp, err
}

func (c *Client) ListMissions(ctx context.Context, filter url.Values) ([]Mission, error) {
	var resp []Mission
	err := c.do(ctx, http.MethodGet, withQuery("missions", filter), nil, &resp)
	return resp, err
}

func (c *Client) GetMission(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "missions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetStatus updates a pilot, drone or mission status. kind is the collection
// name: "pilots", "drones" or "missions".
func (c *Client) SetStatus(ctx context.Context, kind, id, status string, out any) error {
	endpoint := fmt.Sprintf("%s/%s/status", kind, url.PathEscape(id))
	return c.do(ctx, http.MethodPatch, endpoint, map[string]string{"status": status}, out)
}

// Conflicts runs a full fleet scan.
func (c *Client) Conflicts(ctx context.Context) (ConflictReport, error) {
	var resp ConflictReport
	err := c.do(ctx, http.MethodGet, "conflicts", nil, &resp)
	return resp, err
}

// Validate checks a resource against a mission without committing.
func (c *Client) Validate(ctx context.Context, missionID, kind, resourceID string) (Validation, error) {
	var resp Validation
	endpoint := fmt.Sprintf("missions/%s/validate", url.PathEscape(missionID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]string{"kind": kind, "resource_id": resourceID}, &resp)
	return resp, err
}

// Candidates ranks pilots or drones for a mission. limit <= 0 returns all.
func (c *Client) Candidates(ctx context.Context, missionID, kind string, limit int) ([]Candidate, error) {
	q := url.Values{"kind": {kind}}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp struct {
		Candidates []Candidate `json:"candidates"`
	}
	endpoint := withQuery(fmt.Sprintf("missions/%s/candidates", url.PathEscape(missionID)), q)
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Candidates, err
}

// Assign commits an assignment. A blocked assignment returns an *APIError
// for which IsBlocked is true.
func (c *Client) Assign(ctx context.Context, missionID, kind, resourceID string, force bool) (AssignResult, error) {
	body := map[string]any{"kind": kind, "resource_id": resourceID, "force": force}
	var resp AssignResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("missions/%s/assign", url.PathEscape(missionID)), body, &resp)
	return resp, err
}

func (c *Client) Unassign(ctx context.Context, missionID, kind string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("missions/%s/unassign", url.PathEscape(missionID)), map[string]string{"kind": kind}, &resp)
	return resp, err
}

// PlanReassignment proposes replacements; nothing is committed.
func (c *Client) PlanReassignment(ctx context.Context, req UrgentRequest) (Plan, error) {
	var resp Plan
	err := c.do(ctx, http.MethodPost, "reassignments", req, &resp)
	return resp, err
}

// ConfirmReplacement commits one proposed option of a plan.
func (c *Client) ConfirmReplacement(ctx context.Context, planID, missionID, kind, candidateID string, force bool) (AssignResult, Plan, error) {
	body := map[string]any{
		"plan_id":      planID,
		"mission_id":   missionID,
		"kind":         kind,
		"candidate_id": candidateID,
		"force":        force,
	}
	var resp struct {
		Result AssignResult `json:"result"`
		Plan   Plan         `json:"plan"`
	}
	err := c.do(ctx, http.MethodPost, "reassignments/confirm", body, &resp)
	return resp.Result, resp.Plan, err
}

// Events returns recent journal entries. Only SQL-backed servers serve it.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
