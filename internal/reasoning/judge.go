// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package reasoning

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Judge produces a structured judgement of type O from an input of type I.
// The primary tier is best-effort (a reasoning call that may fail or return
// unusable output); the fallback tier is deterministic and must not fail.
// Judge never returns an error: any primary failure falls through.
type Judge[I any, O any] struct {
	// Name identifies the judge in logs.
	Name string
	// Primary attempts the reasoning-backed judgement.
	Primary func(ctx context.Context, input I) (O, error)
	// Fallback is the guaranteed-safe deterministic judgement.
	Fallback func(input I) O
}

// Decide runs the primary tier and falls back on any failure. The fallback
// also covers a nil primary, so judges without a reasoning tier are valid.
func (j *Judge[I, O]) Decide(ctx context.Context, input I) O {
	if j.Primary != nil {
		out, err := j.Primary(ctx, input)
		if err == nil {
			return out
		}
		log.Debugf("%s: primary judgement unavailable, using fallback: %v", j.Name, err)
	}
	return j.Fallback(input)
}
