package controlplane

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// fetchTimeout bounds a single assignment poll, per the HTTP-poll deadline
// the assignment loop retries against on its own next tick.
const fetchTimeout = 10 * time.Second

// ErrNoAssignment is returned when the control plane has no assignment for
// the worker (404).
var ErrNoAssignment = fmt.Errorf("controlplane: no assignment")

// FetchError reports a failed assignment poll. Callers are expected to
// retain the prior Assignment and continue emitting rather than treat this
// as fatal.
type FetchError struct {
	WorkerID string
	Reason   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("controlplane: fetch assignment for %s: %s", e.WorkerID, e.Reason)
}

// Client polls the control plane for a worker's Assignment.
type Client struct {
	baseURL string
	http    *http.Client
	auth    string
}

// NewClient builds a Client against baseURL. auth, if non-empty, is sent
// as a bearer token on every request, satisfying the non-goal of applying
// only a supplied credential header rather than implementing a full auth
// scheme.
func NewClient(baseURL, auth string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: fetchTimeout},
		auth:    auth,
	}
}

func (c *Client) applyAuth(req *http.Request) {
	if c.auth != "" {
		req.Header.Set("Authorization", "Bearer "+c.auth)
	}
}

// FetchAssignment retrieves the current Assignment for workerID.
// ErrNoAssignment is returned on a 404; any other failure is a *FetchError.
func (c *Client) FetchAssignment(workerID string) (*Assignment, error) {
	url := fmt.Sprintf("%s/api/v1/workers/%s/assignment", c.baseURL, workerID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{WorkerID: workerID, Reason: err.Error()}
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{WorkerID: workerID, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoAssignment
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{WorkerID: workerID, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{WorkerID: workerID, Reason: err.Error()}
	}

	var a Assignment
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, &FetchError{WorkerID: workerID, Reason: fmt.Sprintf("decode: %v", err)}
	}
	return &a, nil
}
