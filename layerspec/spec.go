// Package layerspec resolves a user-supplied layer specification against
// a parsed image's diff_id chain into a concrete merge range.
package layerspec

import (
	"strings"

	"github.com/motiejus/squash/internal/squasherr"
)

// Spec is a resolved or unresolved layer specification: exactly one of
// Count or DigestPrefix is set.
type Spec struct {
	count        int
	digestPrefix string
}

// Count selects the n topmost layers for merging, n >= 1.
func Count(n int) (Spec, error) {
	if n < 1 {
		return Spec{}, squasherr.InvalidSpec("cannot merge %d layers", n)
	}
	return Spec{count: n}, nil
}

// DigestPrefix selects the merge range starting at the smallest-index
// layer whose diff_id begins with s. s may carry a leading "sha256:" and
// must be at least 8 hex characters.
func DigestPrefix(s string) (Spec, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "sha256:")
	if len(s) < 8 {
		return Spec{}, squasherr.InvalidSpec("layer id must be at least 8 characters long")
	}
	return Spec{digestPrefix: s}, nil
}
