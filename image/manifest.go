// Package image interprets a validated tar stream as a Docker v1.2 image:
// manifest, config, and layer blobs, cross-referenced and ready for the
// layer selector and merger.
package image

// Manifest is one element of the top-level manifest.json array.
type Manifest struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags,omitempty"`
	Layers   []string `json:"Layers"`
}

// ManifestList is the full top-level manifest.json document: a JSON array,
// typically holding a single image.
type ManifestList []Manifest
