package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dzakiart/derivengine/internal/config"
)

func TestDefaultHasSaneFallbacks(t *testing.T) {
	cfg := config.Default()

	if cfg.DefaultSymbol != "R_100" {
		t.Errorf("DefaultSymbol = %q, want R_100", cfg.DefaultSymbol)
	}
	if cfg.Martingale.Multiplier != 2.0 || cfg.Martingale.MaxLevel != 5 {
		t.Errorf("Martingale = %+v, want {2.0 5}", cfg.Martingale)
	}
	if cfg.ExtremeVolatilityBlocksTrading {
		t.Error("ExtremeVolatilityBlocksTrading should default to false")
	}
}

func TestLoadWithoutConfigFileFallsBackToDefaults(t *testing.T) {
	// An empty explicit configPath makes Load search "." for config.yaml;
	// an empty temp directory with no such file exercises the
	// ConfigFileNotFoundError-is-tolerated path.
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	defer os.Chdir(cwd)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load should tolerate the absence of ./config.yaml, got %v", err)
	}
	if cfg.DefaultSymbol != "R_100" {
		t.Errorf("DefaultSymbol = %q, want the default R_100", cfg.DefaultSymbol)
	}
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
default_symbol: R_75
default_stake: "2.50"
martingale:
  multiplier: 1.5
  max_level: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultSymbol != "R_75" {
		t.Errorf("DefaultSymbol = %q, want R_75", cfg.DefaultSymbol)
	}
	if cfg.Martingale.Multiplier != 1.5 || cfg.Martingale.MaxLevel != 3 {
		t.Errorf("Martingale = %+v, want {1.5 3}", cfg.Martingale)
	}
	want := "2.50"
	if cfg.DefaultStakeStr != want {
		t.Errorf("DefaultStakeStr = %q, want %q", cfg.DefaultStakeStr, want)
	}
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_symbol: R_100\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv("DERIV_DEFAULT_SYMBOL", "R_25")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultSymbol != "R_25" {
		t.Errorf("DefaultSymbol = %q, want the DERIV_DEFAULT_SYMBOL override R_25", cfg.DefaultSymbol)
	}
}

func TestLoadRejectsUnparseableDefaultStake(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("default_stake: \"not-a-number\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Error("Load should reject a default_stake that does not parse as a decimal")
	}
}
