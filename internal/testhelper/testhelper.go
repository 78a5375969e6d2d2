// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package testhelper

import (
	"net/http"
	"os"
	"testing"
)

// MockRoundTripper is a http.RoundTripper that hands each request to Fn.
type MockRoundTripper struct {
	Fn func(req *http.Request) (*http.Response, error)
}

func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// PerformIntegrationTests skips the calling test unless PERFORM_INTEGRATION_TESTS is set.
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if os.Getenv("PERFORM_INTEGRATION_TESTS") == "" {
		t.Skip("skipping integration test, set PERFORM_INTEGRATION_TESTS to run it")
	}
}

// TestOnlineAPIURL is an endpoint that answers with JSON and is used by tests that need a real
// network round trip.
const TestOnlineAPIURL = "https://httpbin.org/json"

// JSONResponse opens the fixture file and wraps it into a 200 response.
func JSONResponse(t *testing.T, file string) *http.Response {
	t.Helper()
	data, err := os.Open(file)
	if err != nil {
		t.Fatalf("failed to open JSON response file: %s", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       data,
		Header:     make(http.Header),
	}
}
