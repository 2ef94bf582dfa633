// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/apisentry/apisentry/internal/config"
)

// Check is one registered API health check.
type Check struct {
	ID           string
	Name         string
	Endpoint     string
	Method       string
	ExpectStatus int
	Body         string
}

// Runner executes registered checks against a target API.
type Runner struct {
	baseURL string
	token   string
	client  *http.Client

	mu     sync.RWMutex
	checks []Check

	maxParallel int
}

// NewRunner creates a runner for the given API root. The token, when set, is
// sent as a bearer credential with every check.
func NewRunner(baseURL, token string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Runner{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		token:       token,
		client:      &http.Client{Timeout: timeout},
		maxParallel: 4,
	}
}

// Register adds a check to the registry. Method defaults to GET and the
// expected status to 200.
func (r *Runner) Register(c Check) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Method == "" {
		c.Method = http.MethodGet
	}
	if c.ExpectStatus == 0 {
		c.ExpectStatus = http.StatusOK
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, c)
}

// RegisterFromConfig loads the configured probe list into the registry.
func (r *Runner) RegisterFromConfig(probes []config.ProbeConfig) {
	for _, p := range probes {
		r.Register(Check{
			Name:         p.Name,
			Endpoint:     p.Endpoint,
			Method:       p.Method,
			ExpectStatus: p.ExpectStatus,
			Body:         p.Body,
		})
	}
}

// Checks returns a snapshot of the registered checks.
func (r *Runner) Checks() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Check, len(r.checks))
	copy(out, r.checks)
	return out
}

// Run executes every registered check once as a single run-group and returns
// the failures. Checks run with bounded parallelism; result order is not
// guaranteed.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	checks := r.Checks()
	if len(checks) == 0 {
		return nil, fmt.Errorf("probe: no checks registered")
	}

	result := &RunResult{
		RunGroupID: uuid.NewString(),
		StartedAt:  time.Now(),
		Total:      len(checks),
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, r.maxParallel)
	)

	for _, c := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			failed := r.execute(ctx, c, result.RunGroupID)
			mu.Lock()
			defer mu.Unlock()
			if failed != nil {
				result.Failed = append(result.Failed, *failed)
			} else {
				result.Passed++
			}
		}(c)
	}
	wg.Wait()

	result.Duration = time.Since(result.StartedAt)
	log.Infof("probe run %s: %d/%d passed, %d failed",
		result.RunGroupID, result.Passed, result.Total, len(result.Failed))
	return result, nil
}

// execute performs one check and returns a FailedProbe when it did not pass,
// nil otherwise. Transport errors count as failures with a zero status code.
func (r *Runner) execute(ctx context.Context, c Check, runGroupID string) *FailedProbe {
	url := r.baseURL + c.Endpoint
	var body io.Reader
	if c.Body != "" {
		body = strings.NewReader(c.Body)
	}

	req, err := http.NewRequestWithContext(ctx, c.Method, url, body)
	if err != nil {
		return r.failure(c, runGroupID, 0, "", err.Error(), "")
	}
	if c.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return r.failure(c, runGroupID, 0, "", err.Error(), "")
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("probe: close response body error: %v", errClose)
		}
	}()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, BodyLimit))
	if resp.StatusCode == c.ExpectStatus {
		return nil
	}

	return r.failure(c, runGroupID, resp.StatusCode, resp.Status, "", string(raw))
}

func (r *Runner) failure(c Check, runGroupID string, status int, statusText, errMsg, respBody string) *FailedProbe {
	return &FailedProbe{
		TestID:       c.ID,
		TestName:     c.Name,
		Endpoint:     c.Endpoint,
		Method:       c.Method,
		StatusCode:   status,
		StatusText:   statusText,
		ErrorMessage: errMsg,
		ResponseBody: respBody,
		RunGroupID:   runGroupID,
	}
}
