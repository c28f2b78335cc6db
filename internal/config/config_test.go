package config

import (
	"os"
	"testing"
)

func TestLoadWithAPIKey(t *testing.T) {
	_ = os.Setenv("STRUCTURE_API_KEY", "test-key-123")
	defer func() { _ = os.Unsetenv("STRUCTURE_API_KEY") }()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected config to load with API key, got error: %v", err)
	}

	if cfg.Feed.APIKey != "test-key-123" {
		t.Errorf("expected API key 'test-key-123', got '%s'", cfg.Feed.APIKey)
	}

	if cfg.Run.Workers != 3 {
		t.Errorf("expected 3 workers by default, got %d", cfg.Run.Workers)
	}

	if cfg.Gex.MaxDTE != 90 {
		t.Errorf("expected default max DTE 90, got %d", cfg.Gex.MaxDTE)
	}

	if cfg.Wyckoff.BCWeights.Max() != 28 {
		t.Errorf("expected BC weights to sum to 28, got %v", cfg.Wyckoff.BCWeights.Max())
	}
}

func TestLoadWithoutAPIKey(t *testing.T) {
	_ = os.Unsetenv("STRUCTURE_API_KEY")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when API key is missing")
	}
}

func TestValidateSymbols(t *testing.T) {
	if err := ValidateSymbols([]string{"SPY", "BRK.B", "NDX"}); err != nil {
		t.Fatalf("expected valid symbols, got %v", err)
	}

	if err := ValidateSymbols([]string{"spy", "TOOLONGSYMBOL"}); err == nil {
		t.Fatal("expected error for malformed symbols")
	}
}

func TestEffectiveSymbols(t *testing.T) {
	got := EffectiveSymbols([]string{"SPY"}, []string{"QQQ"})
	if len(got) != 1 || got[0] != "SPY" {
		t.Errorf("override should win, got %v", got)
	}

	got = EffectiveSymbols(nil, []string{"QQQ"})
	if len(got) != 1 || got[0] != "QQQ" {
		t.Errorf("configured should win over defaults, got %v", got)
	}

	got = EffectiveSymbols(nil, nil)
	if len(got) != len(DefaultSymbols) {
		t.Errorf("expected default symbols, got %v", got)
	}
}
