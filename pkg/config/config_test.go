package config

import (
	"os"
	"testing"
)

func TestLoadGatewayAppliesDefaults(t *testing.T) {
	dataDir := t.TempDir() + "/data"
	t.Setenv("CASCADE_GATEWAY_DATA_DIR", dataDir)
	t.Setenv("CASCADE_GATEWAY_OPERATOR_TOKEN", "test-operator-token")

	cfg, err := LoadGateway(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen_addr, got %s", cfg.ListenAddr)
	}
	if cfg.ReclaimThreshold.String() != "30m0s" {
		t.Fatalf("expected default reclaim_threshold, got %s", cfg.ReclaimThreshold)
	}
	if _, err := os.Stat(dataDir); err != nil {
		t.Fatalf("expected data_dir to be created: %v", err)
	}
}

func TestLoadGatewayRequiresOperatorToken(t *testing.T) {
	if _, err := LoadGateway(t.TempDir()); err == nil {
		t.Fatal("expected error when operator_token is missing")
	}
}

func TestLoadWorkerRequiresCredentials(t *testing.T) {
	t.Setenv("CASCADE_WORKER_GATEWAY_URL", "http://localhost:8080")
	if _, err := LoadWorker(t.TempDir()); err == nil {
		t.Fatal("expected error when access_key/secret_key are missing")
	}
}

func TestLoadWorkerFallsBackToHostname(t *testing.T) {
	t.Setenv("CASCADE_WORKER_GATEWAY_URL", "http://localhost:8080")
	t.Setenv("CASCADE_WORKER_ACCESS_KEY", "AK-test")
	t.Setenv("CASCADE_WORKER_SECRET_KEY", "SK-test")

	cfg, err := LoadWorker(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NodeDisplayName == "" {
		t.Fatal("expected node_display_name to fall back to hostname")
	}
	if cfg.MaxCapacity != 1 {
		t.Fatalf("expected default max_capacity 1, got %d", cfg.MaxCapacity)
	}
}
