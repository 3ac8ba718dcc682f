package image

import (
	"encoding/json"
	"sort"
	"time"

	digest "github.com/opencontainers/go-digest"
)

// RootFS is the config's rootfs descriptor: an ordered chain of diff_ids.
type RootFS struct {
	Type    string          `json:"type"`
	DiffIDs []digest.Digest `json:"diff_ids"`
}

// HistoryEntry records one build step. EmptyLayer is true for steps that
// produced no filesystem delta (e.g. ENV, LABEL).
type HistoryEntry struct {
	Created    time.Time `json:"created"`
	CreatedBy  string    `json:"created_by,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	EmptyLayer bool      `json:"empty_layer,omitempty"`
}

// Config is the image config blob. Fields this package does not interpret
// (architecture-specific container config, variant, labels, and anything
// future Docker versions add) are preserved verbatim in Extra and
// re-emitted on Marshal, so a squash never silently drops metadata it
// does not understand.
type Config struct {
	RootFS  RootFS         `json:"rootfs"`
	History []HistoryEntry `json:"history"`
	Extra   map[string]json.RawMessage `json:"-"`
}

// knownConfigKeys are the keys Config interprets directly; everything else
// round-trips through Extra.
var knownConfigKeys = map[string]bool{
	"rootfs":  true,
	"history": true,
}

// UnmarshalJSON decodes rootfs and history into typed fields and stashes
// every other top-level key in Extra, unparsed.
func (c *Config) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["rootfs"]; ok {
		if err := json.Unmarshal(v, &c.RootFS); err != nil {
			return err
		}
	}
	if v, ok := raw["history"]; ok {
		if err := json.Unmarshal(v, &c.History); err != nil {
			return err
		}
	}
	c.Extra = map[string]json.RawMessage{}
	for k, v := range raw {
		if !knownConfigKeys[k] {
			c.Extra[k] = v
		}
	}
	return nil
}

// MarshalJSON re-emits rootfs and history alongside every preserved Extra
// key, with keys sorted for deterministic output bytes.
func (c Config) MarshalJSON() ([]byte, error) {
	merged := map[string]json.RawMessage{}
	for k, v := range c.Extra {
		merged[k] = v
	}
	rootfs, err := json.Marshal(c.RootFS)
	if err != nil {
		return nil, err
	}
	merged["rootfs"] = rootfs
	history, err := json.Marshal(c.History)
	if err != nil {
		return nil, err
	}
	merged["history"] = history

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, merged[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}
