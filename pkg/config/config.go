package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jaskirat05/graviton-bridge/pkg/ledger"
)

// Config captures service level configuration loaded from config.yaml.
// The storage-mode settings (s3/cloudinary/orchestrator credentials) are
// NOT here: those live in the bridge's own layered JSON config, which is
// mutable at runtime. This file covers the process-level knobs only.
type Config struct {
	Server ServerConfig  `yaml:"server"`
	Bridge BridgeConfig  `yaml:"bridge"`
	Ledger ledger.Config `yaml:"ledger"`
	CORS   CORSConfig    `yaml:"cors"`
	Upload UploadConfig  `yaml:"upload"`
	Redis  RedisConfig   `yaml:"redis"`
}

// ServerConfig defines HTTP server options.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// BridgeConfig points at the bridge's runtime state files.
type BridgeConfig struct {
	ConfigPath   string `yaml:"config_path"`
	TemplatesDir string `yaml:"templates_dir"`
	WorkerIDPath string `yaml:"worker_id_path"`
}

// RedisConfig defines Redis connection settings for distributed locking.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CORSConfig defines CORS middleware settings.
type CORSConfig struct {
	AllowOrigin      string `yaml:"allow_origin"`
	AllowMethods     string `yaml:"allow_methods"`
	AllowHeaders     string `yaml:"allow_headers"`
	AllowCredentials bool   `yaml:"allow_credentials"`
}

// UploadConfig defines file upload constraints.
type UploadConfig struct {
	MaxSize      int64    `yaml:"max_size"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// Load reads a YAML configuration file from the provided path.
// It searches in the current working directory first, then next to the
// binary executable.
func Load(name string) (*Config, error) {
	cfg := defaultConfig()

	configPath := findConfigFile(name)
	if configPath == "" {
		log.Printf("Warning: config file %q not found, using defaults", name)
		return cfg, nil
	}

	log.Printf("Loading config from: %s", configPath)
	f, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	var parsed Config
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&parsed)
	return &parsed, nil
}

func defaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Address: ":8188",
		},
		Bridge: BridgeConfig{
			ConfigPath:   "data/bridge_config.json",
			TemplatesDir: "data/templates",
			WorkerIDPath: "data/.worker_id",
		},
		CORS: CORSConfig{
			AllowOrigin:      "*",
			AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders:     "*",
			AllowCredentials: false,
		},
		Upload: UploadConfig{
			MaxSize: 256 * 1024 * 1024, // generated media runs large
			AllowedTypes: []string{
				"image/jpeg",
				"image/png",
				"image/gif",
				"image/webp",
				"image/bmp",
				"image/tiff",
				"text/plain",
				"text/csv",
				"application/json",
				"application/octet-stream",
				"application/pdf",
				"audio/mpeg",
				"audio/wav",
				"audio/ogg",
				"audio/flac",
				"video/mp4",
				"video/mpeg",
				"video/webm",
				"video/quicktime",
				"model/gltf-binary",
				"model/gltf+json",
				"model/obj",
			},
		},
	}
	cfg.Ledger.Driver = "sqlite"
	cfg.Ledger.SQLite.Path = "data/ledger.db"
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8188"
	}
	if cfg.Bridge.ConfigPath == "" {
		cfg.Bridge.ConfigPath = "data/bridge_config.json"
	}
	if cfg.Bridge.TemplatesDir == "" {
		cfg.Bridge.TemplatesDir = "data/templates"
	}
	if cfg.Bridge.WorkerIDPath == "" {
		cfg.Bridge.WorkerIDPath = "data/.worker_id"
	}
	if cfg.Ledger.Driver == "" {
		cfg.Ledger.Driver = "sqlite"
	}
	if cfg.Ledger.SQLite.Path == "" {
		cfg.Ledger.SQLite.Path = "data/ledger.db"
	}
	if cfg.Upload.MaxSize == 0 {
		cfg.Upload.MaxSize = 256 * 1024 * 1024
	}
}

// findConfigFile searches for a config file in the current directory first,
// then next to the binary executable. Returns the full path or empty string.
func findConfigFile(name string) string {
	if _, err := os.Stat(name); err == nil {
		abs, _ := filepath.Abs(name)
		return abs
	}

	exe, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exe)
		candidate := filepath.Join(exeDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return ""
}
