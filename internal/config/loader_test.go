package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quoth.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadHierarchyEnvOverYAMLOverDefaults(t *testing.T) {
	path := writeYAML(t, "server:\n  port: \"9999\"\nauth:\n  app_url: https://yaml.example\n  jwt_secret: yaml-secret\n")

	t.Setenv("APP_URL", "https://env.example")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9999" {
		t.Fatalf("port = %s, want YAML override of the default", cfg.Server.Port)
	}
	if cfg.Auth.AppURL != "https://env.example" {
		t.Fatalf("app url = %s, want env override of YAML", cfg.Auth.AppURL)
	}
	if cfg.Auth.JWTSecret != "yaml-secret" {
		t.Fatal("empty env value must not clobber the YAML value")
	}
	if cfg.Embedding.Dimensions != Defaults().Embedding.Dimensions {
		t.Fatal("untouched fields keep their defaults")
	}
}

func TestLoadMissingYAMLIsFine(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("APP_URL", "https://quoth.example")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != Defaults().Server.Port {
		t.Fatal("missing file should fall back to defaults")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("APP_URL", "")

	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing JWT_SECRET must fail validation")
	}

	// APP_URL carries a localhost default, so the secret alone unblocks.
	t.Setenv("JWT_SECRET", "s")
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadBurstZeroesEmbedSpacing(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("APP_URL", "https://quoth.example")
	t.Setenv("QUOTH_INDEXER_EMBED_SPACING", "2s")
	t.Setenv("QUOTH_INDEXER_BURST", "true")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Indexer.EmbedSpacing != 0 {
		t.Fatalf("spacing = %s, want 0 in burst mode", cfg.Indexer.EmbedSpacing)
	}
}

func TestLoadDurationEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("APP_URL", "https://quoth.example")
	t.Setenv("QUOTH_SESSION_MAX_IDLE", "45m")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Auth.SessionMaxIdle != 45*time.Minute {
		t.Fatalf("max idle = %s, want 45m", cfg.Auth.SessionMaxIdle)
	}
}
