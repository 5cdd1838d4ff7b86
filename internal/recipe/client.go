package recipe

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/zstd"
)

// fetchTimeout bounds every recipe/catalog fetch, per the control-plane
// deadline the assignment loop retries against on its own next tick.
const fetchTimeout = 10 * time.Second

// ErrNotFound is returned by Client methods when the control plane
// responds 404.
var ErrNotFound = fmt.Errorf("recipe: not found")

// Client fetches recipes and catalog summaries from the control plane.
type Client struct {
	baseURL string
	http    *http.Client
	auth    string
}

// NewClient builds a Client against baseURL. auth, if non-empty, is sent as
// a bearer token on every request.
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

// Fetch retrieves and validates the Recipe for familyID. A response body
// with Content-Encoding: zstd is transparently decompressed.
func (c *Client) Fetch(familyID string) (*Recipe, error) {
	url := fmt.Sprintf("%s/api/v1/recipes/%s", c.baseURL, familyID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &LoadError{FamilyID: familyID, Reason: err.Error()}
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &LoadError{FamilyID: familyID, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{FamilyID: familyID, Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, &LoadError{FamilyID: familyID, Reason: err.Error()}
	}

	var r Recipe
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, &LoadError{FamilyID: familyID, Reason: fmt.Sprintf("decode: %v", err)}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// List retrieves the recipe catalog summary.
func (c *Client) List() ([]Summary, error) {
	url := fmt.Sprintf("%s/api/v1/recipes", c.baseURL)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recipe: catalog list: unexpected status %d", resp.StatusCode)
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	var summaries []Summary
	if err := json.Unmarshal(body, &summaries); err != nil {
		return nil, fmt.Errorf("recipe: catalog list decode: %w", err)
	}
	return summaries, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") != "zstd" {
		return io.ReadAll(resp.Body)
	}
	dec, err := zstd.NewReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
