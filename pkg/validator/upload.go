package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jaskirat05/graviton-bridge/pkg/config"
)

// Upload enforces the size and MIME constraints from the service config.
type Upload struct {
	maxSize      int64
	allowedTypes map[string]bool
}

// NewUpload builds an upload validator. An empty allowed-types list means
// any declared type passes.
func NewUpload(cfg config.UploadConfig) *Upload {
	allowed := make(map[string]bool, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return &Upload{maxSize: cfg.MaxSize, allowedTypes: allowed}
}

// ValidateSize checks the payload size against the configured limit.
func (u *Upload) ValidateSize(size int64) error {
	if size <= 0 {
		return errors.New("file is empty")
	}
	if u.maxSize > 0 && size > u.maxSize {
		return fmt.Errorf("file too large (%d bytes, limit %d)", size, u.maxSize)
	}
	return nil
}

// ValidateMimeType checks a declared MIME type against the whitelist.
// Parameters such as "; charset=utf-8" are stripped before matching.
func (u *Upload) ValidateMimeType(mimeType string) error {
	normalized := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(normalized, ";"); idx > 0 {
		normalized = strings.TrimSpace(normalized[:idx])
	}
	if normalized == "" {
		return errors.New("missing content type")
	}
	if len(u.allowedTypes) > 0 && !u.allowedTypes[normalized] {
		return fmt.Errorf("unsupported file type %q", normalized)
	}
	return nil
}

// Validate performs full validation on an upload.
func (u *Upload) Validate(size int64, mimeType string) error {
	if err := u.ValidateSize(size); err != nil {
		return err
	}
	return u.ValidateMimeType(mimeType)
}
