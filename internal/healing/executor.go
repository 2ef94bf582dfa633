// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/apisentry/apisentry/internal/remedy"
)

// Executor dispatches an ActionPlan to its remediation strategy. Execute
// never panics and never returns an error: every strategy failure is encoded
// as an ActionOutcome with status failed.
type Executor struct {
	backend remedy.Backend
}

// NewExecutor creates an executor over the remediation backend. A nil backend
// is valid; token strategies then downgrade to documented outcomes.
func NewExecutor(backend remedy.Backend) *Executor {
	return &Executor{backend: backend}
}

// Execute runs the strategy selected by plan.Kind.
func (e *Executor) Execute(ctx context.Context, plan ActionPlan) (outcome ActionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("executor: panic in %s strategy: %v", plan.Kind, r)
			outcome = ActionOutcome{
				Status:       OutcomeFailed,
				ErrorMessage: fmt.Sprintf("internal fault in %s strategy: %v", plan.Kind, r),
			}
		}
	}()

	switch plan.Kind {
	case ActionUpdateTokenPermissions:
		return e.updateTokenPermissions(ctx, plan)
	case ActionFixRequestBody:
		return e.fixRequestBody(plan)
	default:
		return e.analyzeOnly(plan)
	}
}

// updateTokenPermissions tries to provision a replacement credential scoped
// to the plan's required permissions. Infeasibility (no backend, no matching
// permission groups) downgrades to a documented success; a reachable backend
// rejecting the request, or a transport fault, is a failed outcome with the
// backend's message preserved verbatim.
func (e *Executor) updateTokenPermissions(ctx context.Context, plan ActionPlan) ActionOutcome {
	if e.backend == nil {
		return documentedOutcome(plan.RequiredPermissions, "no remediation backend configured")
	}

	groups, err := e.backend.ListPermissionGroups(ctx)
	if err != nil {
		if errors.Is(err, remedy.ErrUnconfigured) {
			return documentedOutcome(plan.RequiredPermissions, "no remediation backend configured")
		}
		return ActionOutcome{Status: OutcomeFailed, ErrorMessage: err.Error()}
	}

	var resolved []remedy.PermissionGroup
	for _, name := range plan.RequiredPermissions {
		if g, ok := groups[name]; ok {
			resolved = append(resolved, g)
		}
	}
	if len(resolved) == 0 {
		return documentedOutcome(plan.RequiredPermissions,
			"none of the required permissions map to a grantable permission group")
	}

	tokenName := fmt.Sprintf("apisentry-heal-%s", time.Now().UTC().Format("20060102-150405"))
	issued, err := e.backend.CreateScopedToken(ctx, tokenName, resolved)
	if err != nil {
		return ActionOutcome{Status: OutcomeFailed, ErrorMessage: err.Error()}
	}

	permNames := make([]string, len(resolved))
	for i, g := range resolved {
		permNames[i] = g.Name
	}
	return ActionOutcome{
		Status: OutcomeSuccess,
		Verification: &VerificationDetail{
			Kind: DetailTokenProvisioned,
			TokenProvisioned: &TokenProvisionDetail{
				TokenID:     issued.ID,
				TokenName:   issued.Name,
				TokenValue:  issued.Value,
				Permissions: permNames,
			},
		},
	}
}

// fixRequestBody is diagnostic-only: the body is surfaced for inspection, no
// change is applied.
func (e *Executor) fixRequestBody(plan ActionPlan) ActionOutcome {
	return ActionOutcome{
		Status: OutcomeSuccess,
		Verification: &VerificationDetail{
			Kind: DetailBodyAnalyzed,
			BodyAnalyzed: &BodyAnalysisDetail{
				ObservedBody: plan.ObservedBody,
				Note:         "request body analyzed; no automatic change applied",
			},
		},
	}
}

// analyzeOnly covers every plan kind whose value is the analysis itself.
func (e *Executor) analyzeOnly(plan ActionPlan) ActionOutcome {
	return ActionOutcome{
		Status: OutcomeSuccess,
		Verification: &VerificationDetail{
			Kind:     DetailAnalyzed,
			Analyzed: &AnalyzedDetail{Summary: plan.Description},
		},
	}
}

// documentedOutcome reports a fix that was surfaced but not applied.
// Surfacing the required permissions is valuable even when automatic
// application is impossible, so this is a success, not a failure.
func documentedOutcome(required []string, reason string) ActionOutcome {
	return ActionOutcome{
		Status: OutcomeSuccess,
		Verification: &VerificationDetail{
			Kind: DetailFixDocumented,
			FixDocumented: &DocumentedFixDetail{
				RequiredPermissions: required,
				Reason:              reason,
			},
		},
	}
}
