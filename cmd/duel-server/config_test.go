package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
auth:
  secret: from-file
database:
  dsn: "arena:arena@tcp(127.0.0.1:3306)/algoarena"
redis:
  addr: 127.0.0.1:6379
minio:
  endpoint: 127.0.0.1:9000
  accessKey: minio
  secretKey: minio123
  bucket: sources
duel:
  countdown: 3s
language:
  languages:
    - id: python
      sourceFile: main.py
      runCmd: "python3 {src}"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "duel.yaml", sampleConfig)
	envFile := writeFile(t, dir, ".env", "ALGOARENA_REDIS_ADDR=redis.internal:6379\n")
	t.Setenv("ALGOARENA_JWT_SECRET", "from-env")

	cfg, err := loadAppConfig(path, envFile, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("ALGOARENA_REDIS_ADDR") })

	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("expected env secret override, got %q", cfg.Auth.Secret)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("expected redis addr from env file, got %q", cfg.Redis.Addr)
	}
	if cfg.Duel.Countdown != 3*time.Second {
		t.Fatalf("expected countdown from file, got %v", cfg.Duel.Countdown)
	}
	if cfg.Duel.DisconnectGrace != 60*time.Second {
		t.Fatalf("expected default grace, got %v", cfg.Duel.DisconnectGrace)
	}
	if cfg.Server.Addr != defaultHTTPAddr || cfg.Source.Bucket != "sources" {
		t.Fatalf("expected defaults applied, got %q %q", cfg.Server.Addr, cfg.Source.Bucket)
	}
	if cfg.Redis.PoolSize == 0 {
		t.Fatalf("expected redis defaults applied")
	}
}

func TestLoadAppConfigRequiresSecrets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "duel.yaml", "database:\n  dsn: x\n")
	if _, err := loadAppConfig(path); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
}
