// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apisentry/apisentry/internal/api"
	"github.com/apisentry/apisentry/internal/catalog"
	"github.com/apisentry/apisentry/internal/config"
	"github.com/apisentry/apisentry/internal/healing"
	"github.com/apisentry/apisentry/internal/store"
)

func newTestServer(t *testing.T) (*api.Server, *store.Store) {
	t.Helper()

	ledger, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	controller := healing.NewController(
		ledger,
		healing.NewDiagnoser(nil),
		healing.NewPlanner(catalog.New(nil)),
		healing.NewExecutor(nil),
		healing.NewVerifier(nil),
		2,
	)

	cfg := config.DefaultConfig()
	return api.NewServer(cfg, controller, ledger, nil), ledger
}

func doJSON(t *testing.T, server *api.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
}

func TestRunHealing_InvalidBody(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/v0/healing/run", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, server, http.MethodPost, "/v0/healing/run", `{"failed_probes": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunHealing_EndToEnd(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodPost, "/v0/healing/run", `{
		"failed_probes": [
			{
				"test_id": "probe-1",
				"test_name": "List Workers Scripts",
				"endpoint": "/accounts/abcdef0123456789abcdef0123456789/workers/scripts",
				"method": "GET",
				"status_code": 403,
				"error_message": "permission denied",
				"run_group_id": "rg-api"
			},
			{
				"test_id": "probe-2",
				"test_name": "List Pages",
				"endpoint": "/accounts/abcdef0123456789abcdef0123456789/pages/projects",
				"method": "GET",
				"status_code": 404,
				"status_text": "404 Not Found",
				"run_group_id": "rg-api"
			}
		]
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	results := gjson.Get(body, "results")
	require.Equal(t, int64(2), int64(results.Get("#").Int()))
	assert.Equal(t, "probe-1", results.Get("0.probe_id").String())
	assert.Equal(t, "success", results.Get("0.status").String())
	assert.Equal(t, "update_token_permissions", results.Get("0.action_kind").String())
	assert.Equal(t, "fix_documented", results.Get("0.verification.kind").String())
	assert.Equal(t, "probe-2", results.Get("1.probe_id").String())
	assert.Equal(t, "success", results.Get("1.status").String())

	// The ledger now serves the attempt history for the run-group.
	w = doJSON(t, server, http.MethodGet, "/v0/healing/attempts?run_group=rg-api", "")
	require.Equal(t, http.StatusOK, w.Code)
	listBody := w.Body.String()
	require.Equal(t, int64(2), gjson.Get(listBody, "attempts.#").Int())
	gjson.Get(listBody, "attempts").ForEach(func(_, attempt gjson.Result) bool {
		assert.Equal(t, "success", attempt.Get("status").String())
		assert.Equal(t, int64(5), attempt.Get("steps.#").Int())
		assert.Equal(t, int64(1), attempt.Get("steps.0.step_number").Int())
		assert.Equal(t, "verification", attempt.Get("steps.4.kind").String())
		return true
	})

	// And each attempt is addressable by id.
	attemptID := gjson.Get(body, "results.0.attempt_id").String()
	require.NotEmpty(t, attemptID)
	w = doJSON(t, server, http.MethodGet, "/v0/healing/attempts/"+attemptID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, attemptID, gjson.Get(w.Body.String(), "id").String())
	assert.Equal(t, int64(5), gjson.Get(w.Body.String(), "steps.#").Int())
}

func TestListAttempts_RequiresRunGroup(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/v0/healing/attempts", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAttempt_Unknown(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/v0/healing/attempts/no-such-id", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunProbes_NoRunner(t *testing.T) {
	server, _ := newTestServer(t)

	w := doJSON(t, server, http.MethodGet, "/v0/probes/run", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
