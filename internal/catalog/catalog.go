// Copyright 2026 The apisentry Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package catalog resolves API endpoint paths to the permission names a
// credential needs in order to call them. Resolution is a longest-prefix
// lookup over a configurable table, with path-substring heuristics as a
// fallback for unmapped endpoints.
package catalog

import (
	"sort"
	"strings"
	"sync"
)

// Catalog maps endpoint path prefixes to required permission names.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string][]string
	// prefixes holds the keys of entries sorted longest-first so lookups are
	// deterministic regardless of map iteration order.
	prefixes []string
}

// defaultTable covers the API surfaces probed out of the box.
var defaultTable = map[string][]string{
	"/accounts":             {"Account Settings Read"},
	"/zones":                {"Zone Read"},
	"/zones/dns_records":    {"DNS Read"},
	"/accounts/workers":     {"Workers Scripts Read"},
	"/accounts/r2/buckets":  {"Workers R2 Storage Read"},
	"/accounts/pages":       {"Pages Read"},
	"/user/tokens":          {"API Tokens Read"},
	"/accounts/storage/kv":  {"Workers KV Storage Read"},
	"/accounts/d1/database": {"D1 Read"},
	"/accounts/ai":          {"Workers AI Read"},
	"/accounts/access/apps": {"Access: Apps and Policies Read"},
	"/accounts/rules/lists": {"Account Rulesets Read"},
}

// heuristic maps a path substring to a permission guess, used when the table
// has no matching prefix.
var heuristics = []struct {
	substring  string
	permission string
}{
	{"/workers/", "Workers Scripts Read"},
	{"/dns_records", "DNS Read"},
	{"/r2/", "Workers R2 Storage Read"},
	{"/pages/", "Pages Read"},
	{"/tokens", "API Tokens Read"},
	{"/zones/", "Zone Read"},
	{"/accounts/", "Account Settings Read"},
}

// New creates a catalog from the built-in table merged with overrides.
// Override entries replace built-in entries with the same prefix.
func New(overrides map[string][]string) *Catalog {
	entries := make(map[string][]string, len(defaultTable)+len(overrides))
	for prefix, perms := range defaultTable {
		entries[prefix] = append([]string(nil), perms...)
	}
	for prefix, perms := range overrides {
		entries[prefix] = append([]string(nil), perms...)
	}

	c := &Catalog{entries: entries}
	c.reindex()
	return c
}

// reindex rebuilds the longest-first prefix ordering. Callers hold no lock;
// reindex is only invoked from constructors and mutators that do.
func (c *Catalog) reindex() {
	prefixes := make([]string, 0, len(c.entries))
	for prefix := range c.entries {
		prefixes = append(prefixes, prefix)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})
	c.prefixes = prefixes
}

// Set adds or replaces a prefix entry.
func (c *Catalog) Set(prefix string, permissions []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[prefix] = append([]string(nil), permissions...)
	c.reindex()
}

// Resolve returns the permission names required to call the given endpoint.
// The longest matching table prefix wins; when no prefix matches, path
// substring heuristics apply; an unmapped endpoint yields nil.
func (c *Catalog) Resolve(endpoint string) []string {
	normalized := normalize(endpoint)

	c.mu.RLock()
	for _, prefix := range c.prefixes {
		if strings.HasPrefix(normalized, prefix) {
			perms := append([]string(nil), c.entries[prefix]...)
			c.mu.RUnlock()
			return perms
		}
	}
	c.mu.RUnlock()

	for _, h := range heuristics {
		if strings.Contains(normalized, h.substring) {
			return []string{h.permission}
		}
	}
	return nil
}

// normalize strips account/zone identifier segments so that concrete paths
// like /accounts/abc123/workers/scripts match the /accounts/workers prefix.
func normalize(endpoint string) string {
	parts := strings.Split(endpoint, "/")
	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if part == "" && i != 0 {
			continue
		}
		// Drop the identifier that follows a collection segment.
		if i > 0 && looksLikeID(part) {
			continue
		}
		out = append(out, part)
	}
	joined := strings.Join(out, "/")
	if !strings.HasPrefix(joined, "/") {
		joined = "/" + joined
	}
	return joined
}

// looksLikeID reports whether a path segment is an opaque identifier rather
// than a collection name. Hex-ish strings of 16+ chars and UUID shapes count.
func looksLikeID(segment string) bool {
	if len(segment) >= 16 {
		hexish := true
		for _, r := range segment {
			if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') || r == '-') {
				hexish = false
				break
			}
		}
		if hexish {
			return true
		}
	}
	return false
}
