package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort                     = 8080
	defaultDataDir                  = "data"
	defaultBackendURL               = "http://localhost:8000"
	defaultRequestTimeout           = 120 * time.Second
	defaultMaxUploadMB              = 30
	defaultMaxConcurrentSubmissions = 3
	defaultSessionTTL               = 30 * time.Minute
	defaultPresignTTL               = 15 * time.Minute

	ArtifactsDisk = "disk"
	ArtifactsS3   = "s3"
)

// Environment overrides, applied after the file.
const (
	EnvBackendURL = "PDFMASTER_BACKEND_URL"
	EnvPort       = "PDFMASTER_PORT"
	EnvDataDir    = "PDFMASTER_DATA_DIR"
)

// Config describes runtime configuration for the service.
type Config struct {
	Port                     int           `yaml:"port"`
	DataDir                  string        `yaml:"data_dir"`
	BackendURL               string        `yaml:"backend_url"`
	RequestTimeout           time.Duration `yaml:"request_timeout"`
	MaxUploadMB              int64         `yaml:"max_upload_mb"`
	MaxConcurrentSubmissions int           `yaml:"max_concurrent_submissions"`
	SessionTTL               time.Duration `yaml:"session_ttl"`
	Artifacts                Artifacts     `yaml:"artifacts"`
}

// Artifacts selects where processed results are kept.
type Artifacts struct {
	Kind       string        `yaml:"kind"`
	Bucket     string        `yaml:"bucket"`
	Prefix     string        `yaml:"prefix"`
	Region     string        `yaml:"region"`
	Endpoint   string        `yaml:"endpoint"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Port:                     defaultPort,
		DataDir:                  defaultDataDir,
		BackendURL:               defaultBackendURL,
		RequestTimeout:           defaultRequestTimeout,
		MaxUploadMB:              defaultMaxUploadMB,
		MaxConcurrentSubmissions: defaultMaxConcurrentSubmissions,
		SessionTTL:               defaultSessionTTL,
		Artifacts: Artifacts{
			Kind:       ArtifactsDisk,
			PresignTTL: defaultPresignTTL,
		},
	}
}

// MaxUploadBytes is the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 { return c.MaxUploadMB << 20 }

// Load reads YAML config from the provided path, then applies environment
// overrides. If the file does not exist or is empty, defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) > 0 {
		if err := yaml.Unmarshal(fileData, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	normalize(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackendURL); ok && strings.TrimSpace(v) != "" {
		cfg.BackendURL = v
	}
	if v, ok := lookup(EnvDataDir); ok && strings.TrimSpace(v) != "" {
		cfg.DataDir = v
	}
	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	return nil
}

// normalize fills zero values left by a partial file.
func normalize(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	if cfg.BackendURL == "" {
		cfg.BackendURL = defaultBackendURL
	}
	cfg.Artifacts.Kind = strings.ToLower(strings.TrimSpace(cfg.Artifacts.Kind))
	if cfg.Artifacts.Kind == "" {
		cfg.Artifacts.Kind = ArtifactsDisk
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend_url: %q (must be an absolute http(s) url)", c.BackendURL)
	}
	// values < 1 are not allowed
	if c.MaxConcurrentSubmissions < 1 {
		return fmt.Errorf("invalid max_concurrent_submissions: %d (must be >= 1)", c.MaxConcurrentSubmissions)
	}
	if c.MaxUploadMB < 1 {
		return fmt.Errorf("invalid max_upload_mb: %d (must be >= 1)", c.MaxUploadMB)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request_timeout: %s", c.RequestTimeout)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid session_ttl: %s", c.SessionTTL)
	}
	switch c.Artifacts.Kind {
	case ArtifactsDisk:
	case ArtifactsS3:
		if c.Artifacts.Bucket == "" {
			return errors.New("artifacts.bucket is required for s3")
		}
		if c.Artifacts.PresignTTL <= 0 {
			return fmt.Errorf("invalid artifacts.presign_ttl: %s", c.Artifacts.PresignTTL)
		}
	default:
		return fmt.Errorf("unknown artifacts.kind: %q", c.Artifacts.Kind)
	}
	return nil
}
