// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package probe runs registered API health checks and reports failures in the
// shape consumed by the healing pipeline.
package probe

import "time"

// FailedProbe describes one health check that did not pass. It is the sole
// input of the healing pipeline and is read-only once produced.
type FailedProbe struct {
	TestID       string `json:"test_id"`
	TestName     string `json:"test_name"`
	Endpoint     string `json:"endpoint"`
	Method       string `json:"method"`
	StatusCode   int    `json:"status_code"`
	StatusText   string `json:"status_text"`
	ErrorMessage string `json:"error_message,omitempty"`
	// ResponseBody holds the first bytes of the observed response body,
	// truncated to BodyLimit.
	ResponseBody string `json:"response_body,omitempty"`
	// RunGroupID links the probe to the batch it was executed in.
	RunGroupID string `json:"run_group_id"`
}

// RunResult summarizes one execution of the registered checks.
type RunResult struct {
	RunGroupID string        `json:"run_group_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Total      int           `json:"total"`
	Passed     int           `json:"passed"`
	Failed     []FailedProbe `json:"failed"`
}

// BodyLimit caps how much of a response body is retained on a FailedProbe.
const BodyLimit = 2048
