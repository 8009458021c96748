// Package router selects the asset backend that matches the effective
// bridge configuration. Every call builds a fresh provider so that config
// changes take effect on the next request without a restart.
package router

import (
	"fmt"
	"strings"

	"github.com/jaskirat05/graviton-bridge/pkg/bridgecfg"
	"github.com/jaskirat05/graviton-bridge/pkg/provider"
	"github.com/jaskirat05/graviton-bridge/pkg/provider/cloudinary"
	"github.com/jaskirat05/graviton-bridge/pkg/provider/orchestrator"
	"github.com/jaskirat05/graviton-bridge/pkg/provider/s3"
)

// ForConfig maps the config's mode to a backend instance. Unknown modes
// and backends whose required settings are missing both fail here, before
// any storage call is attempted.
func ForConfig(cfg bridgecfg.Config) (provider.AssetProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case bridgecfg.ModeS3:
		return s3.New(s3.Config{
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
	case bridgecfg.ModeCloudinary:
		return cloudinary.New(cloudinary.Config{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
		})
	case bridgecfg.ModeLocal, bridgecfg.ModeOrchestrator:
		// "local" delegates to the orchestrator as well: the bridge never
		// owns durable storage itself.
		return orchestrator.New(orchestrator.Config{
			BaseURL: cfg.Orchestrator.BaseURL,
			Token:   cfg.Orchestrator.Token,
		})
	default:
		return nil, fmt.Errorf("unsupported storage mode %q", cfg.Mode)
	}
}
