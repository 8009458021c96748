package router

import (
	"testing"

	"github.com/jaskirat05/graviton-bridge/pkg/bridgecfg"
	"github.com/jaskirat05/graviton-bridge/pkg/provider/cloudinary"
	"github.com/jaskirat05/graviton-bridge/pkg/provider/orchestrator"
	"github.com/jaskirat05/graviton-bridge/pkg/provider/s3"
)

func validConfig(mode string) bridgecfg.Config {
	cfg := bridgecfg.Default()
	cfg.Mode = mode
	cfg.Orchestrator.BaseURL = "http://orchestrator.internal"
	cfg.S3.Bucket = "bucket"
	cfg.S3.Region = "us-east-1"
	cfg.S3.AccessKey = "ak"
	cfg.S3.SecretKey = "sk"
	cfg.Cloudinary.CloudName = "demo"
	cfg.Cloudinary.APIKey = "key"
	cfg.Cloudinary.APISecret = "secret"
	return cfg
}

func TestForConfigModeMapping(t *testing.T) {
	p, err := ForConfig(validConfig(bridgecfg.ModeS3))
	if err != nil {
		t.Fatalf("s3 mode: %v", err)
	}
	if _, ok := p.(*s3.Provider); !ok {
		t.Fatalf("s3 mode returned %T", p)
	}

	p, err = ForConfig(validConfig(bridgecfg.ModeCloudinary))
	if err != nil {
		t.Fatalf("cloudinary mode: %v", err)
	}
	if _, ok := p.(*cloudinary.Provider); !ok {
		t.Fatalf("cloudinary mode returned %T", p)
	}

	for _, mode := range []string{bridgecfg.ModeLocal, bridgecfg.ModeOrchestrator} {
		p, err = ForConfig(validConfig(mode))
		if err != nil {
			t.Fatalf("%s mode: %v", mode, err)
		}
		if _, ok := p.(*orchestrator.Provider); !ok {
			t.Fatalf("%s mode returned %T", mode, p)
		}
	}
}

func TestForConfigModeIsCaseInsensitive(t *testing.T) {
	if _, err := ForConfig(validConfig(" S3 ")); err != nil {
		t.Fatalf("trimmed upper-case mode should route: %v", err)
	}
}

func TestForConfigUnknownMode(t *testing.T) {
	if _, err := ForConfig(validConfig("gdrive")); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestForConfigSurfacesBackendValidation(t *testing.T) {
	cfg := validConfig(bridgecfg.ModeS3)
	cfg.S3.Bucket = ""
	if _, err := ForConfig(cfg); err == nil {
		t.Fatalf("expected misconfigured s3 backend to fail construction")
	}

	cfg = validConfig(bridgecfg.ModeOrchestrator)
	cfg.Orchestrator.BaseURL = ""
	if _, err := ForConfig(cfg); err == nil {
		t.Fatalf("expected missing orchestrator base_url to fail construction")
	}
}

func TestForConfigBuildsFreshInstances(t *testing.T) {
	cfg := validConfig(bridgecfg.ModeS3)
	a, err := ForConfig(cfg)
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	b, err := ForConfig(cfg)
	if err != nil {
		t.Fatalf("second build: %v", err)
	}
	if a == b {
		t.Fatalf("expected a fresh provider per call")
	}
}
