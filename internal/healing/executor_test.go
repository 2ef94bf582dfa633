// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package healing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apisentry/apisentry/internal/remedy"
)

// fakeBackend scripts the remediation backend for executor tests.
type fakeBackend struct {
	groups    map[string]remedy.PermissionGroup
	listErr   error
	createErr error
	issued    *remedy.IssuedToken

	createdName   string
	createdGroups []remedy.PermissionGroup
}

func (f *fakeBackend) VerifyToken(ctx context.Context) error { return nil }

func (f *fakeBackend) ListPermissionGroups(ctx context.Context) (map[string]remedy.PermissionGroup, error) {
	return f.groups, f.listErr
}

func (f *fakeBackend) CreateScopedToken(ctx context.Context, name string, groups []remedy.PermissionGroup) (*remedy.IssuedToken, error) {
	f.createdName = name
	f.createdGroups = groups
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.issued, nil
}

func tokenPlan(perms ...string) ActionPlan {
	return ActionPlan{
		Kind:                ActionUpdateTokenPermissions,
		Description:         "issue replacement credential",
		RequiredPermissions: perms,
	}
}

func TestExecutor_ProvisionsToken(t *testing.T) {
	backend := &fakeBackend{
		groups: map[string]remedy.PermissionGroup{
			"Workers Scripts Read": {ID: "pg-1", Name: "Workers Scripts Read"},
			"Zone Read":            {ID: "pg-2", Name: "Zone Read"},
		},
		issued: &remedy.IssuedToken{ID: "tok-1", Name: "replacement", Value: "secret-value"},
	}
	e := NewExecutor(backend)

	outcome := e.Execute(context.Background(), tokenPlan("Workers Scripts Read"))
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.NotNil(t, outcome.Verification)
	require.Equal(t, DetailTokenProvisioned, outcome.Verification.Kind)

	detail := outcome.Verification.TokenProvisioned
	require.NotNil(t, detail)
	assert.Equal(t, "tok-1", detail.TokenID)
	assert.Equal(t, "secret-value", detail.TokenValue)
	assert.Equal(t, []string{"Workers Scripts Read"}, detail.Permissions)

	require.Len(t, backend.createdGroups, 1)
	assert.Equal(t, "pg-1", backend.createdGroups[0].ID)
}

func TestExecutor_NilBackendDocumentsFix(t *testing.T) {
	e := NewExecutor(nil)

	outcome := e.Execute(context.Background(), tokenPlan("Workers Scripts Read"))
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.NotNil(t, outcome.Verification)
	require.Equal(t, DetailFixDocumented, outcome.Verification.Kind)
	assert.Equal(t, []string{"Workers Scripts Read"}, outcome.Verification.FixDocumented.RequiredPermissions)
}

func TestExecutor_UnconfiguredBackendDocumentsFix(t *testing.T) {
	e := NewExecutor(remedy.NewClient("", "", "", 0))

	outcome := e.Execute(context.Background(), tokenPlan("Zone Read"))
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.NotNil(t, outcome.Verification)
	assert.Equal(t, DetailFixDocumented, outcome.Verification.Kind)
}

func TestExecutor_NoMatchingGroupsDocumentsFix(t *testing.T) {
	backend := &fakeBackend{
		groups: map[string]remedy.PermissionGroup{
			"Zone Read": {ID: "pg-2", Name: "Zone Read"},
		},
	}
	e := NewExecutor(backend)

	outcome := e.Execute(context.Background(), tokenPlan("Workers Scripts Read"))
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.Equal(t, DetailFixDocumented, outcome.Verification.Kind)
	assert.Empty(t, backend.createdName, "no token should be requested without matching groups")
}

func TestExecutor_BackendUnreachableFails(t *testing.T) {
	backend := &fakeBackend{listErr: fmt.Errorf("dial tcp 10.0.0.1:443: connect: connection refused")}
	e := NewExecutor(backend)

	outcome := e.Execute(context.Background(), tokenPlan("Zone Read"))
	require.Equal(t, OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.ErrorMessage, "connection refused")
	assert.Nil(t, outcome.Verification)
}

func TestExecutor_BackendRejectsProvisioning(t *testing.T) {
	backend := &fakeBackend{
		groups:    map[string]remedy.PermissionGroup{"Zone Read": {ID: "pg-2", Name: "Zone Read"}},
		createErr: fmt.Errorf("remedy: POST /user/tokens: error 9109: insufficient permissions to create tokens"),
	}
	e := NewExecutor(backend)

	outcome := e.Execute(context.Background(), tokenPlan("Zone Read"))
	require.Equal(t, OutcomeFailed, outcome.Status)
	assert.Equal(t, backend.createErr.Error(), outcome.ErrorMessage,
		"the backend message must be preserved verbatim")
}

func TestExecutor_FixRequestBody(t *testing.T) {
	e := NewExecutor(nil)

	outcome := e.Execute(context.Background(), ActionPlan{
		Kind:         ActionFixRequestBody,
		Description:  "inspect rejected body",
		ObservedBody: `{"errors":[{"message":"missing required field"}]}`,
	})
	require.Equal(t, OutcomeSuccess, outcome.Status)
	require.Equal(t, DetailBodyAnalyzed, outcome.Verification.Kind)
	assert.Contains(t, outcome.Verification.BodyAnalyzed.ObservedBody, "missing required field")
}

func TestExecutor_AnalyzeOnlyKinds(t *testing.T) {
	e := NewExecutor(nil)

	for _, kind := range []ActionKind{ActionRetryRequest, ActionUpdateEndpoint, ActionOther} {
		outcome := e.Execute(context.Background(), ActionPlan{Kind: kind, Description: "documented recommendation"})
		require.Equal(t, OutcomeSuccess, outcome.Status, "kind %s", kind)
		require.Equal(t, DetailAnalyzed, outcome.Verification.Kind, "kind %s", kind)
		assert.Equal(t, "documented recommendation", outcome.Verification.Analyzed.Summary)
	}
}

// panicBackend faults inside the strategy to exercise the recover guard.
type panicBackend struct{ fakeBackend }

func (p *panicBackend) ListPermissionGroups(ctx context.Context) (map[string]remedy.PermissionGroup, error) {
	panic("backend client state corrupted")
}

func TestExecutor_StrategyPanicBecomesFailedOutcome(t *testing.T) {
	e := NewExecutor(&panicBackend{})

	var outcome ActionOutcome
	assert.NotPanics(t, func() {
		outcome = e.Execute(context.Background(), tokenPlan("Zone Read"))
	})
	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.Contains(t, outcome.ErrorMessage, "internal fault")
}
