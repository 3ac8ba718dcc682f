package layerspec

import (
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/motiejus/squash/internal/squasherr"
)

// Range is a resolved merge range [K, L): layers at index K up to but not
// including L are collapsed into one.
type Range struct {
	K, L int
}

// Resolve turns s into a concrete Range against diffIDs, the image's
// diff_id chain in layer order.
func Resolve(s Spec, diffIDs []digest.Digest) (Range, error) {
	l := len(diffIDs)
	if s.digestPrefix != "" {
		return resolvePrefix(s.digestPrefix, diffIDs, l)
	}
	n := s.count
	if n > l {
		n = l
	}
	return Range{K: l - n, L: l}, nil
}

func resolvePrefix(prefix string, diffIDs []digest.Digest, l int) (Range, error) {
	match := -1
	for i, d := range diffIDs {
		hex := strings.ToLower(d.Hex())
		if strings.HasPrefix(hex, prefix) {
			if match != -1 {
				return Range{}, squasherr.AmbiguousLayerID(prefix)
			}
			match = i
		}
	}
	if match == -1 {
		return Range{}, squasherr.LayerNotFound(prefix)
	}
	return Range{K: match, L: l}, nil
}
