// Package assetref defines the immutable descriptor returned for every
// artifact stored through the bridge. A ref is created exactly once by the
// provider that stored the payload and never modified afterwards.
package assetref

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Provider tags recorded in the Provider field.
const (
	ProviderLocal        = "local"
	ProviderOrchestrator = "orchestrator"
	ProviderS3           = "s3"
	ProviderCloudinary   = "cloudinary"
)

// Kind values are caller supplied semantic categories. They are not
// validated against the payload content.
const (
	KindImage = "image"
	KindText  = "text"
	KindFile  = "file"
	KindVideo = "video"
	KindAudio = "audio"
	Kind3D    = "3d"
)

// AssetRef describes a stored artifact. The locator is only meaningful to
// the provider that created the ref; callers must treat it as opaque.
type AssetRef struct {
	AssetID   string         `json:"asset_id"`
	Provider  string         `json:"provider"`
	Kind      string         `json:"kind"`
	MimeType  string         `json:"mime_type"`
	SizeBytes int64          `json:"size_bytes"`
	Checksum  string         `json:"checksum"`
	Locator   string         `json:"locator"`
	Filename  string         `json:"filename"`
	CreatedAt string         `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

// Normalize fills defaults so a ref decoded from an external document is
// always usable: a missing mime type falls back to octet-stream and a nil
// metadata map becomes empty.
func (r *AssetRef) Normalize() {
	if r.MimeType == "" {
		r.MimeType = "application/octet-stream"
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
}

// Decode parses a JSON document into an AssetRef.
func Decode(raw []byte) (*AssetRef, error) {
	var ref AssetRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("decode asset ref: %w", err)
	}
	ref.Normalize()
	return &ref, nil
}

// Encode serialises the ref as compact JSON with sorted keys, suitable for
// sidecar objects.
func (r *AssetRef) Encode() ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode asset ref: %w", err)
	}
	return payload, nil
}

// SortNewestFirst orders refs by created_at descending. Timestamps are
// compared lexically, which is correct for the ISO-8601 strings providers
// write and degrades to a stable ordering for anything else.
func SortNewestFirst(refs []*AssetRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].CreatedAt > refs[j].CreatedAt
	})
}
