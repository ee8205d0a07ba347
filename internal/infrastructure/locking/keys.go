// Package locking provides the mutual-exclusion scopes that serialize
// position and load mutations.
package locking

import (
	"slices"
)

// normalizeKeys sorts and de-duplicates keys so every caller acquires them in
// the same order
func normalizeKeys(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
