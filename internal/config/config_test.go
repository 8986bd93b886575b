package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BackendURL != "http://localhost:8000" || cfg.RequestTimeout != 2*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxUploadBytes() != 30<<20 {
		t.Fatalf("expected 30 MB upload limit, got %d", cfg.MaxUploadBytes())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	cfg, err := Load("not_exists.yml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Port != defaultPort || cfg.Artifacts.Kind != ArtifactsDisk {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadReadsAndValidates(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	path := writeConfig(t, strings.Join([]string{
		"port: 9090",
		"data_dir: testdata",
		"backend_url: https://pdf.example.com/",
		"request_timeout: 45s",
		"max_concurrent_submissions: 2",
		"session_ttl: 10m",
		"artifacts:",
		"  kind: S3",
		"  bucket: results",
		"  prefix: pdf",
		"  presign_ttl: 5m",
	}, "\n"))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9090 || cfg.DataDir != "testdata" || cfg.MaxConcurrentSubmissions != 2 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.BackendURL != "https://pdf.example.com" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.BackendURL)
	}
	if cfg.RequestTimeout != 45*time.Second || cfg.SessionTTL != 10*time.Minute {
		t.Fatalf("durations not parsed: %+v", cfg)
	}
	if cfg.Artifacts.Kind != ArtifactsS3 || cfg.Artifacts.Bucket != "results" || cfg.Artifacts.PresignTTL != 5*time.Minute {
		t.Fatalf("artifacts not parsed: %+v", cfg.Artifacts)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: 9090\nbackend_url: http://file:8000\n")
	t.Setenv(EnvBackendURL, "http://env:9000/")
	t.Setenv(EnvPort, "7070")
	t.Setenv(EnvDataDir, "/srv/pdf")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackendURL != "http://env:9000" || cfg.Port != 7070 || cfg.DataDir != "/srv/pdf" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	t.Setenv(EnvPort, "eighty")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv(EnvBackendURL, "")
	cases := map[string]string{
		"concurrency":   "max_concurrent_submissions: 0\n",
		"backend url":   "backend_url: localhost:8000\n",
		"scheme":        "backend_url: ftp://host\n",
		"timeout":       "request_timeout: -1s\n",
		"artifact kind": "artifacts:\n  kind: gcs\n",
		"s3 bucket":     "artifacts:\n  kind: s3\n",
		"upload limit":  "max_upload_mb: 0\n",
	}
	for name, content := range cases {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
