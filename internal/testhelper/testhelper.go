// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package testhelper

import (
	"net/http"
	"os"
	"testing"
)

const (
	// TestOnlineAPIURL is a slow-responding endpoint used for timeout tests.
	TestOnlineAPIURL = "https://httpbin.org/delay/2"

	integrationEnv = "PERFORM_ONLINE_API_TESTS"
)

// MockRoundTripper is a http.RoundTripper that calls Fn for every request.
type MockRoundTripper struct {
	Fn func(req *http.Request) (*http.Response, error)
}

func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// PerformIntegrationTests skips the calling test unless online API tests were requested.
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if val := os.Getenv(integrationEnv); val == "" {
		t.Skipf("skipping online API test; set %s to enable", integrationEnv)
	}
}
