package config

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	if err := BindFlags(cmd, v); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SandboxMode != "auto" {
		t.Fatalf("expected default sandbox mode auto, got %q", cfg.SandboxMode)
	}
	if cfg.HashAlgorithm != "sha256" {
		t.Fatalf("expected default hash algorithm sha256, got %q", cfg.HashAlgorithm)
	}
}

func TestLoadRejectsInvalidSandboxMode(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	if err := BindFlags(cmd, v); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	v.Set("sandbox-mode", "sometimes")

	if _, err := Load(v); err == nil {
		t.Fatal("expected error for invalid sandbox mode")
	}
}

func TestLoadRejectsInvertedWaterMarks(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	v := viper.New()
	if err := BindFlags(cmd, v); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	v.Set("cas-low-water-bytes", int64(20<<30))
	v.Set("cas-high-water-bytes", int64(10<<30))

	if _, err := Load(v); err == nil {
		t.Fatal("expected error for inverted water marks")
	}
}
