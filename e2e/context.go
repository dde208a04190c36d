package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries HTTP state across the steps of one scenario.
type TestContext struct {
	BaseURL    string
	HTTPClient *http.Client

	sessionID     string
	capabilityKey string
	status        int
	body          []byte
}

func NewTestContext(baseURL string) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.sessionID = ""
	tc.capabilityKey = ""
	tc.status = 0
	tc.body = nil
}

// NewSession starts a session id unique to this scenario.
func (tc *TestContext) NewSession() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	tc.sessionID = "e2e-" + hex.EncodeToString(b)
	return tc.sessionID
}

func (tc *TestContext) SessionID() string { return tc.sessionID }

func (tc *TestContext) CapabilityKey() string { return tc.capabilityKey }

func (tc *TestContext) SetCapabilityKey(key string) { tc.capabilityKey = key }

// Do sends a JSON request and records the response.
func (tc *TestContext) Do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.status = resp.StatusCode
	tc.body, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) StatusCode() int { return tc.status }

func (tc *TestContext) Body() string { return string(tc.body) }

// GetResponseField reads a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(tc.body, &m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := m[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.body)
	}
	return v, nil
}
