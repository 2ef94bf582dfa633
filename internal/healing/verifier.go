// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/apisentry/apisentry/internal/reasoning"
)

const effectivenessSystemPrompt = `You are an API reliability engineer reviewing an automated remediation.
Given the original failure and the action taken, judge whether the fix resolved the issue.
Respond with a single JSON object, no prose:
{"analysis": "...", "manual_steps": "..." or null}
manual_steps must be null when no human follow-up is needed.`

// verifyInput bundles the two inputs of an effectiveness judgement.
type verifyInput struct {
	Probe   FailedProbe
	Outcome ActionOutcome
}

// Verifier judges whether an executed action resolved the original failure.
// Same two-tier shape as the diagnoser: best-effort reasoning call, then a
// deterministic rule over the outcome status.
type Verifier struct {
	judge *reasoning.Judge[verifyInput, Effectiveness]
}

// NewVerifier builds a verifier over an optional reasoning client.
func NewVerifier(client *reasoning.Client) *Verifier {
	judge := &reasoning.Judge[verifyInput, Effectiveness]{
		Name:     "effectiveness",
		Fallback: judgeByOutcome,
	}
	if client != nil && client.Available() {
		judge.Primary = func(ctx context.Context, in verifyInput) (Effectiveness, error) {
			return verifyWithReasoning(ctx, client, in)
		}
	}
	return &Verifier{judge: judge}
}

// Verify returns the effectiveness judgement for an executed action.
func (v *Verifier) Verify(ctx context.Context, probe FailedProbe, outcome ActionOutcome) Effectiveness {
	return v.judge.Decide(ctx, verifyInput{Probe: probe, Outcome: outcome})
}

func verifyWithReasoning(ctx context.Context, client *reasoning.Client, in verifyInput) (Effectiveness, error) {
	action := "no action recorded"
	if in.Outcome.Verification != nil {
		action = string(in.Outcome.Verification.Kind)
	}
	userPrompt := fmt.Sprintf(
		"Original failure: %s %s returned %d %s (%s)\nAction taken: %s\nAction status: %s\nAction error: %s",
		in.Probe.Method, in.Probe.Endpoint, in.Probe.StatusCode, in.Probe.StatusText,
		in.Probe.ErrorMessage, action, in.Outcome.Status, in.Outcome.ErrorMessage)

	reply, err := client.Complete(ctx, effectivenessSystemPrompt, userPrompt)
	if err != nil {
		return Effectiveness{}, err
	}

	obj, err := reasoning.ExtractJSON(reply)
	if err != nil {
		return Effectiveness{}, err
	}

	analysis := gjson.Get(obj, "analysis").String()
	if analysis == "" {
		return Effectiveness{}, fmt.Errorf("effectiveness: reply missing analysis")
	}

	eff := Effectiveness{Analysis: analysis}
	if steps := gjson.Get(obj, "manual_steps"); steps.Exists() && steps.Type == gjson.String && steps.String() != "" {
		s := steps.String()
		eff.ManualSteps = &s
	}
	return eff, nil
}

// judgeByOutcome is the deterministic fallback: a successful outcome appears
// resolved pending a probe re-run; a failed one needs manual intervention.
func judgeByOutcome(in verifyInput) Effectiveness {
	if in.Outcome.Status == OutcomeSuccess {
		return Effectiveness{
			Analysis: "The remediation completed; the issue appears resolved. Re-run the probe to confirm.",
		}
	}

	steps := in.Outcome.ErrorMessage
	if steps == "" {
		steps = "Investigate the failed remediation manually and re-run the probe."
	}
	return Effectiveness{
		Analysis:    "The remediation did not complete; the issue is not resolved and manual intervention is likely required.",
		ManualSteps: &steps,
	}
}
