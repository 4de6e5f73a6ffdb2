package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
  "web3": {"chain_config": "chains.yaml", "default_chain": "sepolia"},
  "storage": {"strategies": {"driver": "file", "path": "strategies"}}
}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected default address %q", cfg.Server.Address)
	}
	if cfg.Queue.Driver != "memory" || cfg.Storage.Runs.Driver != "memory" {
		t.Fatal("expected memory defaults for queue and run store")
	}
	if cfg.Executor.PollIntervalSeconds != 3 || cfg.Executor.MaxPolls != 20 {
		t.Fatalf("unexpected executor defaults %+v", cfg.Executor)
	}
	if cfg.Web3.ChainConfig != filepath.Join(dir, "chains.yaml") {
		t.Fatalf("chain config not resolved against base dir: %q", cfg.Web3.ChainConfig)
	}
	if cfg.Storage.Strategies.Path != filepath.Join(dir, "strategies") {
		t.Fatalf("strategy path not resolved: %q", cfg.Storage.Strategies.Path)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
	if len(cfg.Alerting.Channels) != 1 || cfg.Alerting.Channels[0] != "log" {
		t.Fatalf("expected the log alert channel by default, got %v", cfg.Alerting.Channels)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected empty path to fail")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected missing file to fail")
	}
}
