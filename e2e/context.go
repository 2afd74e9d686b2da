package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte

	AdminToken   string
	ScannerToken string
	Subject      string
	QRToken      string

	saved  map[string]string
	server *inProcessServer
}

// NewTestContext targets BASE_URL when set, otherwise an in-process server
// backed by in-memory stores.
func NewTestContext() (*TestContext, error) {
	tc := &TestContext{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		saved:      make(map[string]string),
	}

	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		tc.BaseURL = strings.TrimRight(baseURL, "/")
		tc.AdminToken = os.Getenv("ADMIN_TOKEN")
		tc.ScannerToken = os.Getenv("SCANNER_TOKEN")
		return tc, nil
	}

	srv, err := startInProcessServer()
	if err != nil {
		return nil, err
	}
	tc.server = srv
	tc.BaseURL = srv.URL()
	tc.AdminToken = srv.adminToken
	tc.ScannerToken = srv.scannerToken
	return tc, nil
}

// Close stops the in-process server, if any.
func (tc *TestContext) Close() {
	if tc.server != nil {
		tc.server.Close()
	}
}

// POST makes a POST request and stores the response
func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.POSTWithHeaders(path, body, nil)
}

// POSTWithHeaders makes a POST request with optional headers
func (tc *TestContext) POSTWithHeaders(path string, body interface{}, headers map[string]string) error {
	return tc.send(http.MethodPost, path, body, headers)
}

// PUTWithHeaders makes a PUT request with optional headers
func (tc *TestContext) PUTWithHeaders(path string, body interface{}, headers map[string]string) error {
	return tc.send(http.MethodPut, path, body, headers)
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.send(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) send(method, path string, body interface{}, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

// GetResponseField extracts a field from the JSON response. Nested fields
// are addressed with dots, e.g. "cryptoProofs.ticketHash".
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var data interface{}
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	for _, part := range strings.Split(field, ".") {
		obj, ok := data.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
		if data, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %s not found in response", field)
		}
	}

	return data, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}
	_, err := tc.GetResponseField(text)
	return err == nil
}

// Save remembers a value for later steps.
func (tc *TestContext) Save(key, value string) {
	tc.saved[key] = value
}

// Saved returns a remembered value.
func (tc *TestContext) Saved(key string) (string, bool) {
	v, ok := tc.saved[key]
	return v, ok
}

func (tc *TestContext) GetAdminToken() string {
	return tc.AdminToken
}

func (tc *TestContext) GetScannerToken() string {
	return tc.ScannerToken
}

func (tc *TestContext) GetSubject() string {
	return tc.Subject
}

func (tc *TestContext) SetSubject(subject string) {
	tc.Subject = subject
}

func (tc *TestContext) GetQRToken() string {
	return tc.QRToken
}

func (tc *TestContext) SetQRToken(token string) {
	tc.QRToken = token
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}
