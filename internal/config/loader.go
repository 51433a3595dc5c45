package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/sentinel-relay/internal/ingest"
	"github.com/mattjoyce/sentinel-relay/internal/signature"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file.
// A directory argument means <dir>/config.yaml.
func Load(configPath string) (*Config, error) {
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
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg.SourceFile = absPath

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults and the environment alone.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg = applyConfigDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfig finds a config file by checking standard locations.
// Priority order: $SENTINEL_CONFIG, ~/.config/sentinel-relay/config.yaml,
// /etc/sentinel-relay/config.yaml, ./config.yaml. Returns "" when none exists.
func DiscoverConfig() string {
	candidates := []string{}
	if p := os.Getenv("SENTINEL_CONFIG"); p != "" {
		candidates = append(candidates, p)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "sentinel-relay", "config.yaml"))
	}
	candidates = append(candidates, "/etc/sentinel-relay/config.yaml", "./config.yaml")

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// loadConfigFile loads and parses a single config file on top of Defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// verifyConfigHash checks path against the .checksums manifest next to it.
// A missing manifest skips verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: sentinel-relay config lock --config %s", basename, dir, path)
	}
	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"This indicates tampering or unauthorized modification.\n"+
			"If you edited this file intentionally, run: sentinel-relay config lock --config %s", path, err, path)
	}
	return nil
}

// applyConfigDefaults fills values left empty by the file or environment.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.Workspace.Cloud == "" {
		cfg.Workspace.Cloud = defaults.Workspace.Cloud
	}
	if cfg.Ingest.APIVersion == "" {
		cfg.Ingest.APIVersion = defaults.Ingest.APIVersion
	}
	if cfg.Ingest.LogTypePrefix == "" {
		cfg.Ingest.LogTypePrefix = defaults.Ingest.LogTypePrefix
	}
	if cfg.Ingest.Timeout == 0 {
		cfg.Ingest.Timeout = defaults.Ingest.Timeout
	}
	if cfg.Receiver.Path == "" {
		cfg.Receiver.Path = defaults.Receiver.Path
	}
	if cfg.Receiver.TypeParam == "" {
		cfg.Receiver.TypeParam = defaults.Receiver.TypeParam
	}
	if cfg.Receiver.SignatureHeader == "" {
		cfg.Receiver.SignatureHeader = defaults.Receiver.SignatureHeader
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = defaults.Journal.Retention
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if _, err := ingest.ParseCloud(cfg.Workspace.Cloud); err != nil {
		return fmt.Errorf("workspace.cloud: %w", err)
	}

	if cfg.Ingest.Timeout < 0 {
		return fmt.Errorf("ingest.timeout must be positive")
	}
	if cfg.Ingest.Endpoint != "" && !strings.HasPrefix(cfg.Ingest.Endpoint, "http://") && !strings.HasPrefix(cfg.Ingest.Endpoint, "https://") {
		return fmt.Errorf("ingest.endpoint must be an http(s) URL (got %q)", cfg.Ingest.Endpoint)
	}

	if !strings.HasPrefix(cfg.Receiver.Path, "/") {
		return fmt.Errorf("receiver.path must start with / (got %q)", cfg.Receiver.Path)
	}
	if cfg.Receiver.Path == "/healthz" {
		return fmt.Errorf("receiver.path must not be /healthz")
	}
	maxBody, err := parseMaxBodySize(cfg.Receiver.MaxBodySize)
	if err != nil {
		return fmt.Errorf("receiver.max_body_size %q: %w", cfg.Receiver.MaxBodySize, err)
	}
	cfg.Receiver.MaxBodyBytes = maxBody
	if err := checkUnresolved("receiver.secret", cfg.Receiver.Secret); err != nil {
		return err
	}

	if cfg.Journal.Enabled && cfg.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when the journal is enabled")
	}
	return nil
}

// ValidateCredentials checks that the workspace id and shared key are usable.
// Load and FromEnv don't require them so an env-only deployment can still start
// and report the fault per request.
func (c *Config) ValidateCredentials() error {
	// Unresolved placeholders would otherwise be used as literal credentials.
	if err := checkUnresolved("workspace.id", c.Workspace.ID); err != nil {
		return err
	}
	if err := checkUnresolved("workspace.shared_key", c.Workspace.SharedKey); err != nil {
		return err
	}
	if c.Workspace.ID == "" {
		return fmt.Errorf("workspace.id is required (set WorkspaceId)")
	}
	if c.Workspace.SharedKey == "" {
		return fmt.Errorf("workspace.shared_key is required (set SharedKey)")
	}
	if err := signature.ValidateKey(c.Workspace.SharedKey); err != nil {
		return fmt.Errorf("workspace.shared_key: %w", err)
	}
	return nil
}

func checkUnresolved(field, value string) error {
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}

// parseMaxBodySize parses size strings like "1MB", "512KB", "1048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	if strings.HasSuffix(upper, "KB") {
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	} else if strings.HasSuffix(upper, "MB") {
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	} else if strings.HasSuffix(upper, "GB") {
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value { // Check for overflow
		return 0, fmt.Errorf("size too large")
	}
	return result, nil
}
