package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.EvalTimeout() != 30*time.Second {
		t.Fatalf("default timeout = %v", cfg.EvalTimeout())
	}
	denied := map[string]bool{}
	for _, d := range cfg.DeniedCommands {
		denied[d] = true
	}
	for _, must := range []string{"exec", "open", "socket", "source", "exit"} {
		if !denied[must] {
			t.Fatalf("default deny-list missing %q", must)
		}
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
listen: ":9999"
eval_timeout_ms: 1500
page_lines: 4
denied_commands: ["exec"]
rollback_token: "sekrit"
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9999" || cfg.EvalTimeoutMs != 1500 || cfg.PageLines != 4 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if len(cfg.DeniedCommands) != 1 || cfg.DeniedCommands[0] != "exec" {
		t.Fatalf("deny-list = %v", cfg.DeniedCommands)
	}
	if cfg.RollbackToken != "sekrit" {
		t.Fatalf("token = %q", cfg.RollbackToken)
	}
	// Untouched keys keep their defaults.
	if cfg.GCEveryCommits != Defaults().GCEveryCommits {
		t.Fatalf("gc default lost: %d", cfg.GCEveryCommits)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("eval_timeout_ms: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
