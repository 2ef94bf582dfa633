// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"context"
	"testing"
)

func TestVerifier_SuccessfulOutcome(t *testing.T) {
	v := NewVerifier(nil)

	eff := v.Verify(context.Background(), FailedProbe{StatusCode: 401}, ActionOutcome{Status: OutcomeSuccess})
	if eff.Analysis == "" {
		t.Error("expected non-empty analysis")
	}
	if eff.ManualSteps != nil {
		t.Errorf("manual_steps = %q, want nil for a successful outcome", *eff.ManualSteps)
	}
}

func TestVerifier_FailedOutcomeCarriesManualSteps(t *testing.T) {
	v := NewVerifier(nil)

	eff := v.Verify(context.Background(), FailedProbe{StatusCode: 403}, ActionOutcome{
		Status:       OutcomeFailed,
		ErrorMessage: "remedy: POST /user/tokens: error 9109: insufficient permissions",
	})
	if eff.ManualSteps == nil {
		t.Fatal("expected manual_steps for a failed outcome")
	}
	if *eff.ManualSteps != "remedy: POST /user/tokens: error 9109: insufficient permissions" {
		t.Errorf("manual_steps = %q, want the outcome error verbatim", *eff.ManualSteps)
	}
}

func TestVerifier_FailedOutcomeWithoutMessage(t *testing.T) {
	v := NewVerifier(nil)

	eff := v.Verify(context.Background(), FailedProbe{}, ActionOutcome{Status: OutcomeFailed})
	if eff.ManualSteps == nil || *eff.ManualSteps == "" {
		t.Fatal("expected a default manual follow-up instruction")
	}
}
