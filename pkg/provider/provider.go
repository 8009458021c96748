// Package provider defines the storage abstraction every asset backend
// implements. Callers obtain a backend for the active mode (see the router
// subpackage), store payloads, and exchange opaque AssetRefs; which backend
// actually holds the bytes is invisible to them.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaskirat05/graviton-bridge/pkg/assetref"
)

// Shared failure modes. Absence on read paths where "absent" is a valid
// outcome (GetMeta, ResolveLocalPath) is reported as a nil/empty result,
// not an error; these sentinels cover the paths that require the data.
var (
	// ErrNotFound means the asset id is unknown to the backend.
	ErrNotFound = errors.New("asset not found")
	// ErrPayloadMissing means the metadata exists but the bytes are gone
	// or unreachable.
	ErrPayloadMissing = errors.New("asset payload missing")
)

// PutInput carries one artifact into PutBytes.
type PutInput struct {
	Payload  []byte
	Filename string
	Kind     string
	// MimeType is optional; backends infer from the filename when empty.
	MimeType string
	// Metadata is an open string-keyed mapping stored with the ref.
	Metadata map[string]any
}

// AssetProvider is the uniform contract over all storage backends. Every
// implementation must be safe for concurrent use; per-call asset ids are
// random so callers never supply their own.
type AssetProvider interface {
	// PutBytes stores the payload and returns a fully populated ref.
	PutBytes(ctx context.Context, in PutInput) (*assetref.AssetRef, error)

	// PutFile reads the file fully into memory and delegates to PutBytes.
	// It fails with a not-found condition when the source path does not
	// exist or is not a regular file.
	PutFile(ctx context.Context, sourcePath, kind string, metadata map[string]any) (*assetref.AssetRef, error)

	// GetMeta fetches the ref without the payload. An unknown id yields
	// (nil, nil).
	GetMeta(ctx context.Context, assetID string) (*assetref.AssetRef, error)

	// GetBytes fetches the full payload; missing assets are an error.
	GetBytes(ctx context.Context, assetID string) ([]byte, error)

	// ResolveLocalPath materializes the asset's bytes into a local file
	// and returns its path, or "" when the asset is unknown. Each call
	// re-downloads; artifacts are immutable so this is a performance,
	// not a correctness, concern.
	ResolveLocalPath(ctx context.Context, assetID string) (string, error)

	// ListAssets returns all known assets newest-first. Backends without
	// listing support return an empty slice, which is not an error.
	ListAssets(ctx context.Context) ([]*assetref.AssetRef, error)
}

// Outbound HTTP bounds shared by the remote backends.
const (
	MetaTimeout    = 30 * time.Second
	PayloadTimeout = 60 * time.Second
)

// ReadSourceFile loads a put_file source fully into memory, returning the
// payload and the base filename.
func ReadSourceFile(sourcePath string) ([]byte, string, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, "", fmt.Errorf("source file %s: %w", sourcePath, fs.ErrNotExist)
	}
	if !info.Mode().IsRegular() {
		return nil, "", fmt.Errorf("source file %s is not a regular file: %w", sourcePath, fs.ErrNotExist)
	}
	payload, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, "", fmt.Errorf("read source file: %w", err)
	}
	return payload, filepath.Base(sourcePath), nil
}

// ExtensionFor returns the filename's extension, defaulting to ".bin" so
// blob keys and cache files always carry a suffix.
func ExtensionFor(filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	return ".bin"
}

// MimeForFilename guesses a content type from the filename extension,
// falling back to application/octet-stream.
func MimeForFilename(filename string) string {
	if guessed := mime.TypeByExtension(filepath.Ext(filename)); guessed != "" {
		// Strip parameters such as "; charset=utf-8".
		if idx := strings.Index(guessed, ";"); idx > 0 {
			return strings.TrimSpace(guessed[:idx])
		}
		return guessed
	}
	return "application/octet-stream"
}

// CacheDir ensures a private materialization directory under the system
// temp dir and returns its path.
func CacheDir(name string) (string, error) {
	dir := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	return dir, nil
}

// MaterializeTo writes payload to dir/<assetID><ext>. Concurrent writers
// for the same asset race benignly: both fetch identical immutable bytes.
func MaterializeTo(dir, assetID, filename string, payload []byte) (string, error) {
	target := filepath.Join(dir, assetID+ExtensionFor(filename))
	if err := os.WriteFile(target, payload, 0o644); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}
	return target, nil
}

// NowUTC formats the current instant the way providers stamp created_at.
func NowUTC() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
