// Package ledger keeps a process-local history of every asset this bridge
// has stored, whichever backend held the bytes. Providers stay the source
// of truth for payloads; the ledger only answers "what went through here".
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jaskirat05/graviton-bridge/pkg/assetref"
)

// Config selects the ledger database.
type Config struct {
	Driver string `yaml:"driver"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
}

// Entry is one recorded asset.
type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"recorded_at"`
	AssetID   string    `gorm:"column:asset_id;uniqueIndex:idx_ledger_asset" json:"asset_id"`
	Provider  string    `gorm:"column:provider;index:idx_ledger_provider" json:"provider"`
	Kind      string    `gorm:"column:kind" json:"kind"`
	MimeType  string    `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes int64     `gorm:"column:size_bytes" json:"size_bytes"`
	Checksum  string    `gorm:"column:checksum" json:"checksum"`
	Locator   string    `gorm:"column:locator;type:text" json:"locator"`
	Filename  string    `gorm:"column:filename" json:"filename"`
	StoredAt  string    `gorm:"column:stored_at" json:"stored_at"`
	Metadata  string    `gorm:"column:metadata;type:text" json:"-"`
}

// TableName overrides gorm to use the asset_ledger table.
func (Entry) TableName() string {
	return "asset_ledger"
}

// Ledger wraps the gorm handle plus the entry DAO behaviour.
type Ledger struct {
	db *gorm.DB
}

// Open initialises the ledger database for the configured driver and
// migrates the schema.
func Open(cfg Config) (*Ledger, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.SQLite.Path == "" {
			return nil, fmt.Errorf("sqlite path must be configured")
		}
		if err := ensureDir(filepath.Dir(cfg.SQLite.Path)); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(cfg.SQLite.Path)
	case "mysql":
		if cfg.MySQL.DSN == "" {
			return nil, fmt.Errorf("mysql dsn must be configured")
		}
		dialector = mysql.Open(cfg.MySQL.DSN)
	case "postgres", "postgresql":
		if cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres dsn must be configured")
		}
		dialector = postgres.Open(cfg.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unsupported ledger driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return NewWithDB(db)
}

// NewWithDB wraps an existing gorm handle, migrating the ledger table.
func NewWithDB(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate asset_ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Close releases the underlying connection pool.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func entryFromRef(ref *assetref.AssetRef) (*Entry, error) {
	metadata := "{}"
	if len(ref.Metadata) > 0 {
		raw, err := json.Marshal(ref.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode ledger metadata: %w", err)
		}
		metadata = string(raw)
	}
	return &Entry{
		AssetID:   ref.AssetID,
		Provider:  ref.Provider,
		Kind:      ref.Kind,
		MimeType:  ref.MimeType,
		SizeBytes: ref.SizeBytes,
		Checksum:  ref.Checksum,
		Locator:   ref.Locator,
		Filename:  ref.Filename,
		StoredAt:  ref.CreatedAt,
		Metadata:  metadata,
	}, nil
}

func (e *Entry) toRef() (*assetref.AssetRef, error) {
	metadata := map[string]any{}
	if e.Metadata != "" {
		if err := json.Unmarshal([]byte(e.Metadata), &metadata); err != nil {
			return nil, fmt.Errorf("decode ledger metadata for %s: %w", e.AssetID, err)
		}
	}
	return &assetref.AssetRef{
		AssetID:   e.AssetID,
		Provider:  e.Provider,
		Kind:      e.Kind,
		MimeType:  e.MimeType,
		SizeBytes: e.SizeBytes,
		Checksum:  e.Checksum,
		Locator:   e.Locator,
		Filename:  e.Filename,
		CreatedAt: e.StoredAt,
		Metadata:  metadata,
	}, nil
}

// Record stores a ref in the ledger. Re-recording the same asset id is a
// no-op so retried uploads do not duplicate history.
func (l *Ledger) Record(ctx context.Context, ref *assetref.AssetRef) error {
	if ref == nil || ref.AssetID == "" {
		return nil
	}
	entry, err := entryFromRef(ref)
	if err != nil {
		return err
	}
	err = l.db.WithContext(ctx).Create(entry).Error
	if err != nil && isDuplicate(err) {
		return nil
	}
	return err
}

func isDuplicate(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique") ||
		strings.Contains(strings.ToLower(err.Error()), "duplicate")
}

// List returns recorded refs, newest first.
func (l *Ledger) List(ctx context.Context) ([]*assetref.AssetRef, error) {
	var entries []Entry
	if err := l.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	refs := make([]*assetref.AssetRef, 0, len(entries))
	for i := range entries {
		ref, err := entries[i].toRef()
		if err != nil {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// GetByAssetID returns the recorded ref, or nil when the asset was never
// stored through this bridge.
func (l *Ledger) GetByAssetID(ctx context.Context, assetID string) (*assetref.AssetRef, error) {
	var entry Entry
	err := l.db.WithContext(ctx).Where("asset_id = ?", assetID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entry.toRef()
}
