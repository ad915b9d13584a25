package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"github.com/TorporOverload/DocChainValidator/internal/testutil"
)

func TestLoadDefault(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../../cmd/docchaind"); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Network.ListenAddr != "0.0.0.0:7700" {
		t.Fatalf("unexpected listen addr: %s", cfg.Network.ListenAddr)
	}
	if cfg.Ledger.Difficulty != 3 {
		t.Fatalf("expected default difficulty 3, got %d", cfg.Ledger.Difficulty)
	}
}

func TestLoadOverride(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../../cmd/docchaind"); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	cfg, err := Load("bootstrap")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Ledger.Difficulty != 4 {
		t.Fatalf("expected overridden difficulty 4, got %d", cfg.Ledger.Difficulty)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected overridden logging level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadSandboxMissingFileFallsBackToDefaults(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox failed: %v", err)
	}
	defer sb.Cleanup()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load should fall back to built-in defaults when no file is present: %v", err)
	}
	if cfg.Ledger.ChainPath != "data/chain.json" {
		t.Fatalf("expected built-in default chain path, got %s", cfg.Ledger.ChainPath)
	}
}

func TestLoadFromEnvUsesDocchainEnv(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir("../../cmd/docchaind"); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	t.Setenv("DOCCHAIN_ENV", "bootstrap")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}
	if cfg.Ledger.Difficulty != 4 {
		t.Fatalf("expected bootstrap overlay via DOCCHAIN_ENV, got difficulty %d", cfg.Ledger.Difficulty)
	}
}
