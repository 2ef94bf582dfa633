// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package healing turns failed API probes into diagnosed, remediated, and
// verified healing attempts with a durable, replayable step ledger.
package healing

import (
	"time"

	"github.com/apisentry/apisentry/internal/probe"
)

// DiagnosisCategory is the closed set of root-cause classifications.
type DiagnosisCategory string

const (
	CategoryTokenPermissions DiagnosisCategory = "token_permissions"
	CategoryRequestBody      DiagnosisCategory = "request_body"
	CategoryEndpointPath     DiagnosisCategory = "endpoint_path"
	CategoryAuthentication   DiagnosisCategory = "authentication"
	CategoryOther            DiagnosisCategory = "other"
)

// ValidCategory reports whether c is one of the defined category tags.
func ValidCategory(c DiagnosisCategory) bool {
	switch c {
	case CategoryTokenPermissions, CategoryRequestBody, CategoryEndpointPath,
		CategoryAuthentication, CategoryOther:
		return true
	}
	return false
}

// Diagnosis is the inferred root cause of a probe failure. Immutable once
// produced.
type Diagnosis struct {
	Analysis       string            `json:"analysis"`
	Recommendation string            `json:"recommendation"`
	Category       DiagnosisCategory `json:"category"`
	AutoFixable    bool              `json:"auto_fixable"`
}

// ActionKind is the closed set of remediation strategies.
type ActionKind string

const (
	ActionUpdateTokenPermissions ActionKind = "update_token_permissions"
	ActionRetryRequest           ActionKind = "retry_request"
	ActionFixRequestBody         ActionKind = "fix_request_body"
	ActionUpdateEndpoint         ActionKind = "update_endpoint"
	ActionOther                  ActionKind = "other"
)

// ActionPlan is the chosen remediation strategy and its parameters. Plans are
// a pure function of (diagnosis, probe, catalog); identical inputs yield an
// identical plan.
type ActionPlan struct {
	Kind        ActionKind `json:"kind"`
	Description string     `json:"description"`
	// RequiredPermissions carries the permission names to grant for
	// update_token_permissions plans.
	RequiredPermissions []string `json:"required_permissions,omitempty"`
	// ObservedBody carries the response body under inspection for
	// fix_request_body plans.
	ObservedBody string `json:"observed_body,omitempty"`
}

// OutcomeStatus is the terminal status of an executed action.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// DetailKind tags the variant carried by a VerificationDetail.
type DetailKind string

const (
	// DetailTokenProvisioned records a replacement credential that was issued.
	DetailTokenProvisioned DetailKind = "token_provisioned"
	// DetailFixDocumented records a fix that was surfaced but not applied.
	DetailFixDocumented DetailKind = "fix_documented"
	// DetailBodyAnalyzed records a request-body inspection with no change applied.
	DetailBodyAnalyzed DetailKind = "body_analyzed"
	// DetailAnalyzed records an analysis-only action.
	DetailAnalyzed DetailKind = "analyzed"
)

// TokenProvisionDetail describes a credential that was actually issued.
// The secret value is persisted to the ledger by design; logs redact it.
type TokenProvisionDetail struct {
	TokenID     string   `json:"token_id"`
	TokenName   string   `json:"token_name"`
	TokenValue  string   `json:"token_value"`
	Permissions []string `json:"permissions"`
}

// DocumentedFixDetail describes a fix that could not be applied automatically.
type DocumentedFixDetail struct {
	RequiredPermissions []string `json:"required_permissions,omitempty"`
	Reason              string   `json:"reason"`
}

// BodyAnalysisDetail describes a diagnostic-only request body inspection.
type BodyAnalysisDetail struct {
	ObservedBody string `json:"observed_body,omitempty"`
	Note         string `json:"note"`
}

// AnalyzedDetail echoes the plan description for analysis-only actions.
type AnalyzedDetail struct {
	Summary string `json:"summary"`
}

// VerificationDetail is a tagged union describing what an action actually
// did. Exactly one variant field matching Kind is set; Metadata is reserved
// for genuinely free-form diagnostic text.
type VerificationDetail struct {
	Kind             DetailKind            `json:"kind"`
	TokenProvisioned *TokenProvisionDetail `json:"token_provisioned,omitempty"`
	FixDocumented    *DocumentedFixDetail  `json:"fix_documented,omitempty"`
	BodyAnalyzed     *BodyAnalysisDetail   `json:"body_analyzed,omitempty"`
	Analyzed         *AnalyzedDetail       `json:"analyzed,omitempty"`
	Metadata         map[string]any        `json:"metadata,omitempty"`
}

// ActionOutcome is the result of executing an ActionPlan.
type ActionOutcome struct {
	Status       OutcomeStatus       `json:"status"`
	Verification *VerificationDetail `json:"verification,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// Effectiveness is the post-hoc judgement of whether the action resolved the
// original failure. A nil ManualSteps means the issue is considered resolved.
type Effectiveness struct {
	Analysis    string  `json:"analysis"`
	ManualSteps *string `json:"manual_steps,omitempty"`
}

// AttemptStatus is the lifecycle state of a healing attempt.
type AttemptStatus string

const (
	AttemptPending    AttemptStatus = "pending"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSuccess    AttemptStatus = "success"
	AttemptFailed     AttemptStatus = "failed"
)

// Terminal reports whether s permits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptSuccess || s == AttemptFailed
}

// Attempt is one pass of the diagnose/plan/execute/verify pipeline for one
// failed probe. Owned exclusively by the controller until finalized.
type Attempt struct {
	ID            string         `json:"id"`
	RunGroupID    string         `json:"run_group_id"`
	ProbeID       string         `json:"probe_id,omitempty"`
	Status        AttemptStatus  `json:"status"`
	Diagnosis     *Diagnosis     `json:"diagnosis,omitempty"`
	Plan          *ActionPlan    `json:"plan,omitempty"`
	Outcome       *ActionOutcome `json:"outcome,omitempty"`
	Effectiveness *Effectiveness `json:"effectiveness,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StepKind classifies a unit of pipeline work in the ledger.
type StepKind string

const (
	StepThinking     StepKind = "thinking"
	StepDecision     StepKind = "decision"
	StepAction       StepKind = "action"
	StepVerification StepKind = "verification"
	StepAnalysis     StepKind = "analysis"
)

// StepStatus is the recorded state of a ledger step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Step is one recorded unit of work within an attempt. Step numbers are
// 1-based and strictly increasing per attempt; a step recorded as
// in_progress is later re-recorded with its terminal status.
type Step struct {
	AttemptID  string         `json:"attempt_id"`
	StepNumber int            `json:"step_number"`
	Kind       StepKind       `json:"kind"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Thoughts   string         `json:"thoughts,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	Status     StepStatus     `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Result is the per-probe output handed back to the batch caller. Success or
// failure is encoded here, never raised.
type Result struct {
	AttemptID          string              `json:"attempt_id"`
	RunGroupID         string              `json:"run_group_id"`
	ProbeID            string              `json:"probe_id,omitempty"`
	DiagnosisAnalysis  string              `json:"diagnosis_analysis,omitempty"`
	Recommendation     string              `json:"recommendation,omitempty"`
	ActionKind         ActionKind          `json:"action_kind,omitempty"`
	ActionDescription  string              `json:"action_description,omitempty"`
	Status             AttemptStatus       `json:"status"`
	ErrorMessage       string              `json:"error_message,omitempty"`
	Verification       *VerificationDetail `json:"verification,omitempty"`
	EffectivenessNotes string              `json:"effectiveness_notes,omitempty"`
	ManualSteps        *string             `json:"manual_steps,omitempty"`
}

// FailedProbe aliases the probe runner's output shape; the pipeline consumes
// it read-only.
type FailedProbe = probe.FailedProbe
