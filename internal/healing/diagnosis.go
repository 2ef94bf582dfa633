// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/apisentry/apisentry/internal/reasoning"
)

// diagnosisSystemPrompt instructs the reasoning backend to answer with the
// closed category set only.
const diagnosisSystemPrompt = `You are an API reliability engineer. Given a failed API health check, diagnose the root cause.
Respond with a single JSON object, no prose:
{"analysis": "...", "recommendation": "...", "category": "token_permissions|request_body|endpoint_path|authentication|other", "auto_fixable": true|false}`

// Diagnoser produces a Diagnosis for a failed probe. It never fails: when the
// reasoning backend is absent, errors, or returns output outside the closed
// category set, a deterministic rule-based classifier takes over.
type Diagnoser struct {
	judge *reasoning.Judge[FailedProbe, Diagnosis]
}

// NewDiagnoser builds a diagnoser over an optional reasoning client. A nil
// client disables the primary tier entirely.
func NewDiagnoser(client *reasoning.Client) *Diagnoser {
	judge := &reasoning.Judge[FailedProbe, Diagnosis]{
		Name:     "diagnosis",
		Fallback: classifyProbe,
	}
	if client != nil && client.Available() {
		judge.Primary = func(ctx context.Context, p FailedProbe) (Diagnosis, error) {
			return diagnoseWithReasoning(ctx, client, p)
		}
	}
	return &Diagnoser{judge: judge}
}

// Diagnose returns a Diagnosis for the probe. The category is always one of
// the five defined tags.
func (d *Diagnoser) Diagnose(ctx context.Context, p FailedProbe) Diagnosis {
	return d.judge.Decide(ctx, p)
}

// diagnoseWithReasoning asks the backend and coerces its output into the
// closed category set. Any parse failure is an error so the fallback applies.
func diagnoseWithReasoning(ctx context.Context, client *reasoning.Client, p FailedProbe) (Diagnosis, error) {
	userPrompt := fmt.Sprintf(
		"Test: %s\nEndpoint: %s %s\nStatus: %d %s\nError: %s\nResponse body: %s",
		p.TestName, p.Method, p.Endpoint, p.StatusCode, p.StatusText, p.ErrorMessage, p.ResponseBody)

	reply, err := client.Complete(ctx, diagnosisSystemPrompt, userPrompt)
	if err != nil {
		return Diagnosis{}, err
	}

	obj, err := reasoning.ExtractJSON(reply)
	if err != nil {
		return Diagnosis{}, err
	}

	diag := Diagnosis{
		Analysis:       gjson.Get(obj, "analysis").String(),
		Recommendation: gjson.Get(obj, "recommendation").String(),
		Category:       DiagnosisCategory(gjson.Get(obj, "category").String()),
		AutoFixable:    gjson.Get(obj, "auto_fixable").Bool(),
	}
	if !ValidCategory(diag.Category) {
		return Diagnosis{}, fmt.Errorf("diagnosis: category %q outside closed set", diag.Category)
	}
	if diag.Analysis == "" {
		return Diagnosis{}, fmt.Errorf("diagnosis: reply missing analysis")
	}
	return diag, nil
}

// Phrase tables for the deterministic classifier. First match wins, in the
// order token/permissions, authentication, bad input, missing endpoint.
var (
	permissionPhrases = []string{
		"not allowed for the api_token authentication scheme",
		"permission denied",
		"lacks permission",
		"insufficient permission",
		"unauthorized to access requested resource",
		"requires permission",
		"access denied",
	}
	// permissionErrorCodes are backend error codes that indicate a
	// credential-scope problem rather than a bad credential.
	permissionErrorCodes = []string{"9109", "10000", "7003"}

	authPhrases = []string{
		"invalid api token",
		"invalid token",
		"authentication error",
		"invalid credentials",
		"login required",
		"unable to authenticate",
	}

	badInputPhrases = []string{
		"malformed",
		"invalid json",
		"missing required field",
		"validation error",
		"could not parse",
		"invalid request body",
	}
)

// classifyProbe is the guaranteed-safe fallback classifier over status code
// and error text.
func classifyProbe(p FailedProbe) Diagnosis {
	text := strings.ToLower(p.ErrorMessage + " " + p.ResponseBody + " " + p.StatusText)

	if containsAny(text, permissionPhrases) || containsAny(text, permissionErrorCodes) {
		return Diagnosis{
			Analysis:       fmt.Sprintf("The credential used by %q lacks the permission scope required for %s %s.", p.TestName, p.Method, p.Endpoint),
			Recommendation: "Issue a replacement credential that includes the permissions this endpoint requires.",
			Category:       CategoryTokenPermissions,
			AutoFixable:    true,
		}
	}

	if p.StatusCode == http.StatusUnauthorized || containsAny(text, authPhrases) {
		return Diagnosis{
			Analysis:       fmt.Sprintf("The request to %s %s was rejected as unauthenticated (status %d).", p.Method, p.Endpoint, p.StatusCode),
			Recommendation: "Verify the credential is present, unexpired, and sent with the expected authentication scheme.",
			Category:       CategoryAuthentication,
			AutoFixable:    false,
		}
	}

	if p.StatusCode == http.StatusBadRequest || containsAny(text, badInputPhrases) {
		return Diagnosis{
			Analysis:       fmt.Sprintf("The request body or parameters sent to %s %s were rejected as invalid.", p.Method, p.Endpoint),
			Recommendation: "Compare the request payload against the endpoint's current schema and fix mismatched fields.",
			Category:       CategoryRequestBody,
			AutoFixable:    true,
		}
	}

	if p.StatusCode == http.StatusNotFound || strings.Contains(text, "not found") {
		return Diagnosis{
			Analysis:       fmt.Sprintf("The endpoint %s was not found (status %d); the path may have moved or the resource no longer exists.", p.Endpoint, p.StatusCode),
			Recommendation: "Check the API changelog for a renamed or versioned path and update the probe definition.",
			Category:       CategoryEndpointPath,
			AutoFixable:    false,
		}
	}

	return Diagnosis{
		Analysis:       fmt.Sprintf("Probe %q failed with status %d and no recognized failure signature.", p.TestName, p.StatusCode),
		Recommendation: "Inspect the response body and server-side logs for this endpoint manually.",
		Category:       CategoryOther,
		AutoFixable:    false,
	}
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
