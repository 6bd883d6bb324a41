package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coehub.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.LogLevel != "info" || cfg.Persistence.Driver != "memory" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
log_level: debug
persistence:
  driver: sqlite
  path: /var/lib/coehub/state.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Persistence.Driver != "sqlite" || cfg.Persistence.Path != "/var/lib/coehub/state.db" {
		t.Fatalf("persistence = %+v", cfg.Persistence)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
persistence:
  driver: sqlite
`)
	t.Setenv("COEHUB_LISTEN", ":7070")
	t.Setenv("COEHUB_PERSISTENCE_DRIVER", "postgres")
	t.Setenv("COEHUB_PERSISTENCE_DSN", "postgres://db.internal/coehub")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Fatalf("listen = %q", cfg.Listen)
	}
	if cfg.Persistence.Driver != "postgres" || cfg.Persistence.DSN != "postgres://db.internal/coehub" {
		t.Fatalf("persistence = %+v", cfg.Persistence)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "log_level: warn\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.LogLevel != "warn" || cfg.Persistence.Driver != "memory" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad driver":    "persistence:\n  driver: dynamo\n",
		"bad log level": "log_level: chatty\n",
		"bad yaml":      "listen: [\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, content)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
