// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package catalog

import (
	"reflect"
	"testing"
)

func TestResolve_LongestPrefixWins(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name     string
		endpoint string
		want     []string
	}{
		{
			name:     "nested prefix beats parent",
			endpoint: "/accounts/workers/scripts",
			want:     []string{"Workers Scripts Read"},
		},
		{
			name:     "parent prefix still matches",
			endpoint: "/accounts/members",
			want:     []string{"Account Settings Read"},
		},
		{
			name:     "dns records beat zones",
			endpoint: "/zones/dns_records",
			want:     []string{"DNS Read"},
		},
		{
			name:     "account id segment is stripped",
			endpoint: "/accounts/0123456789abcdef0123456789abcdef/r2/buckets",
			want:     []string{"Workers R2 Storage Read"},
		},
		{
			name:     "zone id segment is stripped",
			endpoint: "/zones/abcdef0123456789abcdef0123456789/dns_records",
			want:     []string{"DNS Read"},
		},
		{
			name:     "token verify",
			endpoint: "/user/tokens/verify",
			want:     []string{"API Tokens Read"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Resolve(tt.endpoint)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%q) = %v, want %v", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestResolve_HeuristicsForUnmappedPaths(t *testing.T) {
	c := New(nil)

	got := c.Resolve("/client/v4/graphql/workers/observability")
	if !reflect.DeepEqual(got, []string{"Workers Scripts Read"}) {
		t.Errorf("Resolve = %v, want workers heuristic", got)
	}
}

func TestResolve_UnknownEndpointIsNil(t *testing.T) {
	c := New(nil)

	if got := c.Resolve("/totally/unknown/surface"); got != nil {
		t.Errorf("Resolve = %v, want nil", got)
	}
}

func TestNew_OverridesReplaceDefaults(t *testing.T) {
	c := New(map[string][]string{
		"/accounts/workers": {"Workers Scripts Write"},
		"/custom/api":       {"Custom Read"},
	})

	if got := c.Resolve("/accounts/workers/scripts"); !reflect.DeepEqual(got, []string{"Workers Scripts Write"}) {
		t.Errorf("override not applied, got %v", got)
	}
	if got := c.Resolve("/custom/api/things"); !reflect.DeepEqual(got, []string{"Custom Read"}) {
		t.Errorf("custom entry not resolved, got %v", got)
	}
}

func TestSet_AddsEntryAtRuntime(t *testing.T) {
	c := New(nil)

	c.Set("/accounts/queues", []string{"Queues Read"})
	if got := c.Resolve("/accounts/abcdef0123456789abcdef0123456789/queues"); !reflect.DeepEqual(got, []string{"Queues Read"}) {
		t.Errorf("Resolve = %v, want [Queues Read]", got)
	}
}

func TestResolve_ReturnsCopy(t *testing.T) {
	c := New(nil)

	first := c.Resolve("/zones")
	first[0] = "mutated"
	second := c.Resolve("/zones")
	if second[0] != "Zone Read" {
		t.Error("Resolve must return a copy, not the internal slice")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/accounts/0123456789abcdef0123456789abcdef/workers/scripts", "/accounts/workers/scripts"},
		{"/accounts/my-team/workers", "/accounts/my-team/workers"},
		{"/zones", "/zones"},
		{"zones/dns_records", "/zones/dns_records"},
		{"/accounts/01234567-89ab-cdef-0123-456789abcdef/pages", "/accounts/pages"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
