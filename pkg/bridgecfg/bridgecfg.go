// Package bridgecfg maintains the bridge's effective configuration: which
// provider mode is active plus one settings block per backend. Values are
// layered as built-in defaults, then the persisted config file, then (only
// when no file exists yet) environment-derived defaults.
package bridgecfg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Provider modes accepted by Validate.
const (
	ModeLocal        = "local"
	ModeOrchestrator = "orchestrator"
	ModeS3           = "s3"
	ModeCloudinary   = "cloudinary"
)

// SecretMask replaces every non-empty secret field in redacted output.
const SecretMask = "***"

// DefaultConfigVersion is written when no version has been persisted yet.
const DefaultConfigVersion = "1"

// OrchestratorConfig holds connection settings for the orchestrator proxy.
type OrchestratorConfig struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

// S3Config holds credentials and addressing for the object-store backend.
type S3Config struct {
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

// CloudinaryConfig holds credentials for the media-CDN backend.
type CloudinaryConfig struct {
	CloudName string `json:"cloud_name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Folder    string `json:"folder"`
}

// Config is the full effective configuration. Exactly one mode is active at
// a time; inactive blocks keep their values but are unused.
type Config struct {
	Mode          string             `json:"mode"`
	ConfigVersion string             `json:"config_version"`
	Orchestrator  OrchestratorConfig `json:"orchestrator"`
	S3            S3Config           `json:"s3"`
	Cloudinary    CloudinaryConfig   `json:"cloudinary"`
}

// Default returns the built-in base layer.
func Default() Config {
	return Config{
		Mode:          ModeLocal,
		ConfigVersion: DefaultConfigVersion,
	}
}

// EnvDefaults builds a config layer from GRAVITON_* environment variables.
// It participates only when no config file has been persisted, so transient
// environment state never gets baked into saved configuration.
func EnvDefaults() Config {
	get := func(key string) string { return strings.TrimSpace(os.Getenv(key)) }
	return Config{
		Mode: get("GRAVITON_BRIDGE_MODE"),
		Orchestrator: OrchestratorConfig{
			BaseURL: get("GRAVITON_ORCHESTRATOR_BASE_URL"),
			Token:   get("GRAVITON_ORCHESTRATOR_TOKEN"),
		},
		S3: S3Config{
			Bucket:    get("GRAVITON_S3_BUCKET"),
			Prefix:    get("GRAVITON_S3_PREFIX"),
			Endpoint:  get("GRAVITON_S3_ENDPOINT"),
			Region:    get("GRAVITON_S3_REGION"),
			AccessKey: get("GRAVITON_S3_ACCESS_KEY"),
			SecretKey: get("GRAVITON_S3_SECRET_KEY"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: get("GRAVITON_CLOUDINARY_CLOUD_NAME"),
			APIKey:    get("GRAVITON_CLOUDINARY_API_KEY"),
			APISecret: get("GRAVITON_CLOUDINARY_API_SECRET"),
			Folder:    get("GRAVITON_CLOUDINARY_FOLDER"),
		},
	}
}

// Validate checks the merged result before it is persisted or used.
func Validate(cfg Config) error {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch mode {
	case ModeLocal, ModeOrchestrator, ModeS3, ModeCloudinary:
		return nil
	}
	return fmt.Errorf("mode must be one of: local, orchestrator, s3, cloudinary (got %q)", cfg.Mode)
}

// Redact returns a response-safe copy with every secret field masked.
// Non-secret fields and structure are left intact. Apply this to every
// outbound representation of configuration.
func Redact(cfg Config) Config {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return SecretMask
	}
	cfg.Orchestrator.Token = mask(cfg.Orchestrator.Token)
	cfg.S3.AccessKey = mask(cfg.S3.AccessKey)
	cfg.S3.SecretKey = mask(cfg.S3.SecretKey)
	cfg.Cloudinary.APIKey = mask(cfg.Cloudinary.APIKey)
	cfg.Cloudinary.APISecret = mask(cfg.Cloudinary.APISecret)
	return cfg
}

// Patch is a partial configuration update. Nil fields are left untouched;
// set fields overwrite, block by block, field by field.
type Patch struct {
	Mode          *string            `json:"mode"`
	ConfigVersion *string            `json:"config_version"`
	Orchestrator  *OrchestratorPatch `json:"orchestrator"`
	S3            *S3Patch           `json:"s3"`
	Cloudinary    *CloudinaryPatch   `json:"cloudinary"`
}

type OrchestratorPatch struct {
	BaseURL *string `json:"base_url"`
	Token   *string `json:"token"`
}

type S3Patch struct {
	Bucket    *string `json:"bucket"`
	Prefix    *string `json:"prefix"`
	Endpoint  *string `json:"endpoint"`
	Region    *string `json:"region"`
	AccessKey *string `json:"access_key"`
	SecretKey *string `json:"secret_key"`
}

type CloudinaryPatch struct {
	CloudName *string `json:"cloud_name"`
	APIKey    *string `json:"api_key"`
	APISecret *string `json:"api_secret"`
	Folder    *string `json:"folder"`
}

// DecodePatch parses a JSON patch body. Unknown keys are rejected rather
// than silently accepted.
func DecodePatch(raw []byte) (Patch, error) {
	var p Patch
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Patch{}, fmt.Errorf("decode config patch: %w", err)
	}
	return p, nil
}

// Apply merges a patch onto a base config, one level at a time.
func Apply(base Config, p Patch) Config {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&base.Mode, p.Mode)
	set(&base.ConfigVersion, p.ConfigVersion)
	if p.Orchestrator != nil {
		set(&base.Orchestrator.BaseURL, p.Orchestrator.BaseURL)
		set(&base.Orchestrator.Token, p.Orchestrator.Token)
	}
	if p.S3 != nil {
		set(&base.S3.Bucket, p.S3.Bucket)
		set(&base.S3.Prefix, p.S3.Prefix)
		set(&base.S3.Endpoint, p.S3.Endpoint)
		set(&base.S3.Region, p.S3.Region)
		set(&base.S3.AccessKey, p.S3.AccessKey)
		set(&base.S3.SecretKey, p.S3.SecretKey)
	}
	if p.Cloudinary != nil {
		set(&base.Cloudinary.CloudName, p.Cloudinary.CloudName)
		set(&base.Cloudinary.APIKey, p.Cloudinary.APIKey)
		set(&base.Cloudinary.APISecret, p.Cloudinary.APISecret)
		set(&base.Cloudinary.Folder, p.Cloudinary.Folder)
	}
	return base
}

// Store loads and persists the bridge config file. Mutations within one
// process are serialized through the store's mutex; cross-process writers
// remain last-writer-wins unless the caller adds external serialization.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store persisting to the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) readFileLayer() (Patch, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Patch{}, false
	}
	p, err := DecodePatch(raw)
	if err != nil {
		// Treat a corrupt file as absent rather than wedging the bridge.
		return Patch{}, false
	}
	return p, true
}

func patchFromConfig(cfg Config) Patch {
	str := func(v string) *string { return &v }
	return Patch{
		Mode:          str(cfg.Mode),
		ConfigVersion: str(cfg.ConfigVersion),
		Orchestrator: &OrchestratorPatch{
			BaseURL: str(cfg.Orchestrator.BaseURL),
			Token:   str(cfg.Orchestrator.Token),
		},
		S3: &S3Patch{
			Bucket:    str(cfg.S3.Bucket),
			Prefix:    str(cfg.S3.Prefix),
			Endpoint:  str(cfg.S3.Endpoint),
			Region:    str(cfg.S3.Region),
			AccessKey: str(cfg.S3.AccessKey),
			SecretKey: str(cfg.S3.SecretKey),
		},
		Cloudinary: &CloudinaryPatch{
			CloudName: str(cfg.Cloudinary.CloudName),
			APIKey:    str(cfg.Cloudinary.APIKey),
			APISecret: str(cfg.Cloudinary.APISecret),
			Folder:    str(cfg.Cloudinary.Folder),
		},
	}
}

// Effective returns the merged configuration visible to providers.
func (s *Store) Effective() Config {
	cfg := Default()
	if file, ok := s.readFileLayer(); ok {
		return Apply(cfg, file)
	}
	env := EnvDefaults()
	cfg = Apply(cfg, envPatch(env))
	return cfg
}

// envPatch lifts a non-empty env layer into a patch so empty variables do
// not clobber defaults.
func envPatch(env Config) Patch {
	opt := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}
	return Patch{
		Mode: opt(env.Mode),
		Orchestrator: &OrchestratorPatch{
			BaseURL: opt(env.Orchestrator.BaseURL),
			Token:   opt(env.Orchestrator.Token),
		},
		S3: &S3Patch{
			Bucket:    opt(env.S3.Bucket),
			Prefix:    opt(env.S3.Prefix),
			Endpoint:  opt(env.S3.Endpoint),
			Region:    opt(env.S3.Region),
			AccessKey: opt(env.S3.AccessKey),
			SecretKey: opt(env.S3.SecretKey),
		},
		Cloudinary: &CloudinaryPatch{
			CloudName: opt(env.Cloudinary.CloudName),
			APIKey:    opt(env.Cloudinary.APIKey),
			APISecret: opt(env.Cloudinary.APISecret),
			Folder:    opt(env.Cloudinary.Folder),
		},
	}
}

// ApplyPatch merges the patch against defaults plus the file layer only
// (never the env layer), validates, persists, and returns the saved config.
func (s *Store) ApplyPatch(p Patch) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := Default()
	if file, ok := s.readFileLayer(); ok {
		base = Apply(base, file)
	}
	merged := Apply(base, p)
	if err := Validate(merged); err != nil {
		return Config{}, err
	}
	if err := s.persist(merged); err != nil {
		return Config{}, err
	}
	return merged, nil
}

// persist writes the config atomically as pretty-printed, key-sorted JSON.
func (s *Store) persist(cfg Config) error {
	payload, err := encodeSorted(cfg)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(dir, ".bridge-config-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// encodeSorted round-trips through a map so the output keys are sorted,
// matching the persisted file format.
func encodeSorted(cfg Config) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("reshape config: %w", err)
	}
	out, err := json.MarshalIndent(generic, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return append(out, '\n'), nil
}

// FileExists reports whether a config file has been persisted.
func (s *Store) FileExists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
