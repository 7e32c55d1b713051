package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/MEKXH/cherub/internal/config"
	"github.com/MEKXH/cherub/internal/enforcement"
)

func TestInitCommand_CreatesConfigAndPolicy(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("runInit error: %v", err)
	}

	configPath := config.ConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("expected config file at %s: %v", configPath, err)
	}

	cfg := config.DefaultConfig()
	if _, err := os.Stat(cfg.WorkspacePath()); err != nil {
		t.Fatalf("expected workspace dir at %s: %v", cfg.WorkspacePath(), err)
	}

	policyPath := cfg.PolicyPath()
	policy, err := enforcement.Load(policyPath)
	if err != nil {
		t.Fatalf("expected loadable default policy at %s: %v", policyPath, err)
	}
	if _, ok := policy.FindTool("bash"); !ok {
		t.Fatal("default policy must declare the bash tool")
	}
	if _, ok := policy.FindTool("files"); !ok {
		t.Fatal("default policy must declare the files tool")
	}
}

func TestInitCommand_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("USERPROFILE", tmpDir)

	if err := runInit(nil, nil); err != nil {
		t.Fatalf("first runInit error: %v", err)
	}
	if err := runInit(nil, nil); err != nil {
		t.Fatalf("second runInit error: %v", err)
	}
}

func TestPolicyCheck_ClassifiesCommands(t *testing.T) {
	tmpDir := t.TempDir()
	policyPath := filepath.Join(tmpDir, "policy.toml")
	if err := os.WriteFile(policyPath, []byte(defaultPolicyDoc), 0644); err != nil {
		t.Fatalf("WriteFile policy error: %v", err)
	}

	policy, err := enforcement.Load(policyPath)
	if err != nil {
		t.Fatalf("Load policy error: %v", err)
	}

	tool, ok := policy.FindTool("bash")
	if !ok {
		t.Fatal("bash tool missing from default policy")
	}

	if tier, ok := tool.MatchTier("ls /tmp"); !ok || tier != enforcement.TierObserve {
		t.Fatalf("expected 'ls /tmp' to be observe, got %v ok=%v", tier, ok)
	}
	if tier, ok := tool.MatchTier("rm -rf /"); !ok || tier != enforcement.TierCommit {
		t.Fatalf("expected 'rm -rf /' to be commit, got %v ok=%v", tier, ok)
	}
	if _, ok := tool.MatchTier("curl https://example.com"); ok {
		t.Fatal("expected 'curl' to match no tier")
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		configLevel string
		override    string
		want        slog.Level
		wantErr     bool
	}{
		{configLevel: "", want: slog.LevelInfo},
		{configLevel: "debug", want: slog.LevelDebug},
		{configLevel: "warn", want: slog.LevelWarn},
		{configLevel: "info", override: "error", want: slog.LevelError},
		{configLevel: "bogus", wantErr: true},
	}

	for _, tc := range cases {
		got, err := parseLogLevel(tc.configLevel, tc.override)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseLogLevel(%q, %q): expected error", tc.configLevel, tc.override)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseLogLevel(%q, %q) error: %v", tc.configLevel, tc.override, err)
		}
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q, %q)=%v want %v", tc.configLevel, tc.override, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
	if got := truncate("a long command line", 8); got != "a long …" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestRenderOutput_Plain(t *testing.T) {
	content := "# Heading\n\nbody"
	if got := renderOutput(content, true); got != content {
		t.Fatalf("plain mode must pass content through, got %q", got)
	}
}
