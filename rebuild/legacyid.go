package rebuild

import (
	digest "github.com/opencontainers/go-digest"
	"github.com/opencontainers/image-spec/identity"
)

// legacyIDChain computes the per-layer legacy IDs used for the v1.2
// sidecar directories (<legacy_id>/layer.tar, .../json, .../VERSION), one
// per prefix of diffIDs. Each ID is the OCI chain ID of the diff_ids up to
// and including that layer, the same recursive digest-of-parent-plus-self
// construction image stores use to key their layer graph.
func legacyIDChain(diffIDs []digest.Digest) []string {
	ids := make([]string, len(diffIDs))
	for i := range diffIDs {
		ids[i] = identity.ChainID(diffIDs[:i+1]).Hex()
	}
	return ids
}
