package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads configuration from configPath, applies defaults and
// environment overrides, then validates. An empty path yields the defaults
// plus environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}
	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}
		if info.IsDir() {
			absPath = filepath.Join(absPath, "config.yaml")
		}
		cfg, err = loadConfigFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", absPath, err)
		}
		cfg.SourceFile = absPath
	}

	cfg = applyConfigDefaults(cfg)

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// DiscoverConfigPath finds a config file by checking standard locations.
// Priority order: $FOLIO_CONFIG, ./folio.yaml, ~/.config/folio/config.yaml,
// /etc/folio/config.yaml. It returns "" when none exists.
func DiscoverConfigPath() string {
	if p := os.Getenv("FOLIO_CONFIG"); p != "" {
		return p
	}
	candidates := []string{"./folio.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "folio", "config.yaml"))
	}
	candidates = append(candidates, "/etc/folio/config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadConfigFile parses a single file after ${VAR} interpolation. Unknown
// keys are rejected.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.SweepInterval == 0 {
		cfg.Service.SweepInterval = defaults.Service.SweepInterval
	}
	if cfg.Service.PIDFile == "" {
		cfg.Service.PIDFile = defaults.Service.PIDFile
	}

	if cfg.Sessions.TTL == 0 {
		cfg.Sessions.TTL = defaults.Sessions.TTL
	}
	if cfg.Sessions.BaseDir == "" {
		cfg.Sessions.BaseDir = defaults.Sessions.BaseDir
	}
	if cfg.Sessions.MaxUploadBytes == 0 {
		cfg.Sessions.MaxUploadBytes = defaults.Sessions.MaxUploadBytes
	}

	t, dt := &cfg.Dispatch.Timeouts, defaults.Dispatch.Timeouts
	if t.OCR == nil {
		t.OCR = dt.OCR
	}
	if t.Markdown == nil {
		t.Markdown = dt.Markdown
	}
	if t.Split == nil {
		t.Split = dt.Split
	}
	if t.Merge == nil {
		t.Merge = dt.Merge
	}

	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = defaults.OCR.DPI
	}
	if len(cfg.OCR.Languages) == 0 {
		cfg.OCR.Languages = defaults.OCR.Languages
	}
	if cfg.OCR.MaxEdge == 0 {
		cfg.OCR.MaxEdge = defaults.OCR.MaxEdge
	}
	if cfg.OCR.Pdftoppm == "" {
		cfg.OCR.Pdftoppm = defaults.OCR.Pdftoppm
	}

	if cfg.Markdown.URL == "" {
		cfg.Markdown.URL = defaults.Markdown.URL
	}
	if cfg.Markdown.PageBreak == nil {
		cfg.Markdown.PageBreak = defaults.Markdown.PageBreak
	}
	if cfg.Markdown.RequestTimeout == 0 {
		cfg.Markdown.RequestTimeout = defaults.Markdown.RequestTimeout
	}

	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = defaults.Journal.Retention
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if len(cfg.API.CORSOrigins) == 0 {
		cfg.API.CORSOrigins = defaults.API.CORSOrigins
	}
	if cfg.API.RateLimit == 0 {
		cfg.API.RateLimit = defaults.API.RateLimit
	}
	if cfg.API.WriteTimeout == 0 {
		cfg.API.WriteTimeout = defaults.API.WriteTimeout
	}
	if cfg.API.Auth.JWT.TTL == 0 {
		cfg.API.Auth.JWT.TTL = defaults.API.Auth.JWT.TTL
	}

	if cfg.Export.Prefix == "" {
		cfg.Export.Prefix = defaults.Export.Prefix
	}

	return cfg
}

func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&cfg.API.Listen, o.Listen)
	setString(&cfg.Service.LogLevel, o.LogLevel)
	setString(&cfg.API.Auth.APIKey, o.APIKey)
	setString(&cfg.API.Auth.JWT.Secret, o.JWTSecret)
	setString(&cfg.Sessions.BaseDir, o.SessionsDir)
	setString(&cfg.Markdown.URL, o.DoclingURL)
	setString(&cfg.Journal.Path, o.JournalPath)
	setString(&cfg.Export.AccessKey, o.S3AccessKey)
	setString(&cfg.Export.SecretKey, o.S3SecretKey)
	if o.SessionTTL != 0 {
		cfg.Sessions.TTL = o.SessionTTL
	}
	if o.MaxConcurrent != 0 {
		cfg.Dispatch.MaxConcurrent = o.MaxConcurrent
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Left in place; validation rejects it where a secret is expected.
		return match
	})
}

// unresolved reports a ${VAR} placeholder left in a secret field.
func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, m[1])
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.SweepInterval <= 0 {
		return fmt.Errorf("service.sweep_interval must be positive")
	}

	if cfg.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be positive")
	}
	if cfg.Sessions.MaxUploadBytes < 0 {
		return fmt.Errorf("sessions.max_upload_bytes must not be negative")
	}

	if cfg.Dispatch.MaxConcurrent < 0 {
		return fmt.Errorf("dispatch.max_concurrent must not be negative")
	}
	for name, d := range map[string]*time.Duration{
		"ocr":      cfg.Dispatch.Timeouts.OCR,
		"markdown": cfg.Dispatch.Timeouts.Markdown,
		"split":    cfg.Dispatch.Timeouts.Split,
		"merge":    cfg.Dispatch.Timeouts.Merge,
	} {
		if d != nil && *d < 0 {
			return fmt.Errorf("dispatch.timeouts.%s must not be negative", name)
		}
	}

	if cfg.OCR.DPI < 50 || cfg.OCR.DPI > 1200 {
		return fmt.Errorf("ocr.dpi must be between 50 and 1200 (got %d)", cfg.OCR.DPI)
	}
	if cfg.OCR.MaxEdge < 0 {
		return fmt.Errorf("ocr.max_edge must not be negative")
	}

	u, err := url.Parse(cfg.Markdown.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("markdown.url must be an http(s) URL (got %q)", cfg.Markdown.URL)
	}
	if cfg.Markdown.RequestTimeout < 0 {
		return fmt.Errorf("markdown.request_timeout must not be negative")
	}

	if cfg.Journal.On() && strings.TrimSpace(cfg.Journal.Path) == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	if cfg.Journal.Retention < 0 {
		return fmt.Errorf("journal.retention must not be negative")
	}

	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if err := validateAuth(cfg.API.Auth); err != nil {
		return err
	}

	if cfg.Export.Enabled {
		if cfg.Export.Endpoint == "" {
			return fmt.Errorf("export.endpoint is required when export is enabled")
		}
		if cfg.Export.Bucket == "" {
			return fmt.Errorf("export.bucket is required when export is enabled")
		}
		if err := unresolved("export.access_key", cfg.Export.AccessKey); err != nil {
			return err
		}
		if err := unresolved("export.secret_key", cfg.Export.SecretKey); err != nil {
			return err
		}
	}
	return nil
}

func validateAuth(a APIAuthConfig) error {
	if err := unresolved("api.auth.api_key", a.APIKey); err != nil {
		return err
	}
	for i, tok := range a.Tokens {
		if tok.Token == "" {
			return fmt.Errorf("api.auth.tokens[%d].token is required", i)
		}
		if err := unresolved(fmt.Sprintf("api.auth.tokens[%d].token", i), tok.Token); err != nil {
			return err
		}
		if len(tok.Scopes) == 0 {
			return fmt.Errorf("api.auth.tokens[%d].scopes must be non-empty", i)
		}
	}

	if a.JWT.Secret == "" {
		if len(a.JWT.Clients) > 0 {
			return fmt.Errorf("api.auth.jwt.secret is required when clients are configured")
		}
		return nil
	}
	if err := unresolved("api.auth.jwt.secret", a.JWT.Secret); err != nil {
		return err
	}
	if a.JWT.TTL <= 0 {
		return fmt.Errorf("api.auth.jwt.ttl must be positive")
	}
	seen := make(map[string]bool, len(a.JWT.Clients))
	for i, c := range a.JWT.Clients {
		if c.ID == "" || c.Secret == "" {
			return fmt.Errorf("api.auth.jwt.clients[%d] needs id and secret", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("api.auth.jwt.clients[%d]: duplicate id %q", i, c.ID)
		}
		seen[c.ID] = true
		if err := unresolved(fmt.Sprintf("api.auth.jwt.clients[%d].secret", i), c.Secret); err != nil {
			return err
		}
	}
	return nil
}
