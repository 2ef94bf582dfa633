// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import "context"

// Ledger is the durable record of attempts and their steps. The controller
// is the only writer; steps for one attempt are written by a single goroutine
// so step numbers are never reused.
type Ledger interface {
	// CreateAttempt persists a new attempt in its initial state.
	CreateAttempt(ctx context.Context, attempt *Attempt) error
	// UpdateAttempt persists attempt mutations (status, diagnosis, plan,
	// outcome, effectiveness, error message).
	UpdateAttempt(ctx context.Context, attempt *Attempt) error
	// RecordStep persists one step recording. A step first recorded as
	// in_progress is re-recorded under the same number with its terminal
	// status; the store keeps the latest state per (attempt, number) as the
	// canonical step and both recordings remain visible to observers.
	RecordStep(ctx context.Context, step *Step) error

	// GetAttempt loads one attempt by id.
	GetAttempt(ctx context.Context, attemptID string) (*Attempt, error)
	// ListAttempts returns the attempts for a run-group, oldest first.
	ListAttempts(ctx context.Context, runGroupID string) ([]*Attempt, error)
	// ListSteps returns an attempt's steps ordered by step number.
	ListSteps(ctx context.Context, attemptID string) ([]*Step, error)
}
