// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"fmt"
	"strings"

	"github.com/apisentry/apisentry/internal/catalog"
)

// Planner maps a diagnosis to a concrete remediation plan. Planning is a pure
// function of (diagnosis, probe) plus the permission catalog; no randomness,
// no I/O.
type Planner struct {
	catalog *catalog.Catalog
}

// NewPlanner creates a planner over the given permission catalog.
func NewPlanner(cat *catalog.Catalog) *Planner {
	return &Planner{catalog: cat}
}

// Plan derives the remediation action for a diagnosis.
//
// token_permissions + auto-fixable resolves the probe endpoint to required
// permission names; request_body + auto-fixable carries the observed body for
// inspection; everything else becomes an "other" plan that documents the
// recommendation without acting on it.
func (p *Planner) Plan(diag Diagnosis, probe FailedProbe) ActionPlan {
	switch {
	case diag.Category == CategoryTokenPermissions && diag.AutoFixable:
		perms := p.catalog.Resolve(probe.Endpoint)
		if len(perms) == 0 {
			// The catalog heuristics cover unmapped endpoints; an empty
			// result here means even those found nothing to suggest.
			perms = []string{"Account Settings Read"}
		}
		return ActionPlan{
			Kind:                ActionUpdateTokenPermissions,
			Description:         fmt.Sprintf("Issue a replacement credential granting: %s", strings.Join(perms, ", ")),
			RequiredPermissions: perms,
		}

	case diag.Category == CategoryRequestBody && diag.AutoFixable:
		return ActionPlan{
			Kind:         ActionFixRequestBody,
			Description:  fmt.Sprintf("Inspect the request body rejected by %s %s", probe.Method, probe.Endpoint),
			ObservedBody: probe.ResponseBody,
		}

	default:
		// Deliberate no-op-but-documented outcome, not a failure.
		return ActionPlan{
			Kind:        ActionOther,
			Description: diag.Recommendation,
		}
	}
}
