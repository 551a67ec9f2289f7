package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.History.MinimumBudget != 500 {
		t.Errorf("expected minimum budget 500, got %d", cfg.History.MinimumBudget)
	}
	if cfg.LLM.MaxIterations != 12 {
		t.Errorf("expected 12 max iterations, got %d", cfg.LLM.MaxIterations)
	}
	if cfg.Gateway.MessageLimit != 2000 {
		t.Errorf("expected message limit 2000, got %d", cfg.Gateway.MessageLimit)
	}
}

func TestParseOverrides(t *testing.T) {
	yamlDoc := `
llm:
  model: gen-13b
  max_context_tokens: 16384
history:
  minimum_budget: 800
log_level: debug
`
	cfg, err := Parse([]byte(yamlDoc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "gen-13b" {
		t.Errorf("expected model gen-13b, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.MaxContextTok != 16384 {
		t.Errorf("expected 16384 context tokens, got %d", cfg.LLM.MaxContextTok)
	}
	if cfg.History.MinimumBudget != 800 {
		t.Errorf("expected minimum budget 800, got %d", cfg.History.MinimumBudget)
	}
	// Untouched sections keep defaults.
	if cfg.History.PrimaryFetchLimit != 150 {
		t.Errorf("expected primary fetch limit 150, got %d", cfg.History.PrimaryFetchLimit)
	}
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("GEN_TEST_TOKEN", "sekrit")
	cfg, err := Parse([]byte("gateway:\n  token: ${GEN_TEST_TOKEN}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Token != "sekrit" {
		t.Errorf("expected expanded token, got %q", cfg.Gateway.Token)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	_, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /tmp/gen\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataDir != "/tmp/gen" {
		t.Errorf("expected data_dir /tmp/gen, got %q", cfg.DataDir)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLogLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLogLevel(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
