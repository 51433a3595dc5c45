package config

import "time"

// Config represents the complete sentinel-relay configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Listen    string          `yaml:"listen"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Receiver  ReceiverConfig  `yaml:"receiver"`
	Journal   JournalConfig   `yaml:"journal"`

	// SourceFile is the absolute path the config was loaded from ("" for env-only).
	SourceFile string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// WorkspaceConfig identifies the destination Log Analytics workspace.
type WorkspaceConfig struct {
	ID        string `yaml:"id"`
	SharedKey string `yaml:"shared_key"`
	// Cloud is "commercial" (.com) or "government" (.us).
	Cloud string `yaml:"cloud"`
}

// IngestConfig defines outbound collector settings.
type IngestConfig struct {
	APIVersion         string        `yaml:"api_version"`
	LogTypePrefix      string        `yaml:"log_type_prefix"`
	TimeGeneratedField string        `yaml:"time_generated_field,omitempty"`
	Timeout            time.Duration `yaml:"timeout"`
	// Endpoint overrides the collector base URL (tests, private links).
	Endpoint string `yaml:"endpoint,omitempty"`
}

// ReceiverConfig defines the inbound webhook endpoint.
type ReceiverConfig struct {
	Path        string `yaml:"path"`
	TypeParam   string `yaml:"type_param"`
	DefaultType string `yaml:"default_type,omitempty"`
	// MaxBodySize accepts "1MB", "512KB" or a plain byte count.
	MaxBodySize string `yaml:"max_body_size"`

	// Secret, when set, requires callers to sign the body with HMAC-SHA256.
	Secret string `yaml:"secret,omitempty"`
	// SignatureHeader carries the caller's signature (default: X-Signature-256).
	SignatureHeader string `yaml:"signature_header,omitempty"`

	// MaxBodyBytes is MaxBodySize parsed during Load.
	MaxBodyBytes int64 `yaml:"-"`
}

// JournalConfig defines the optional delivery journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB
	ChecksumsFile      = ".checksums"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "sentinel-relay",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Listen: "127.0.0.1:7071",
		Workspace: WorkspaceConfig{
			Cloud: "commercial",
		},
		Ingest: IngestConfig{
			APIVersion:    "2016-04-01",
			LogTypePrefix: "Noname_",
			Timeout:       30 * time.Second,
		},
		Receiver: ReceiverConfig{
			Path:            "/api/noname-webhook-post",
			TypeParam:       "type",
			MaxBodySize:     "1MB",
			MaxBodyBytes:    DefaultMaxBodySize,
			SignatureHeader: "X-Signature-256",
		},
		Journal: JournalConfig{
			Enabled:   false,
			Path:      "./data/deliveries.db",
			Retention: 30 * 24 * time.Hour,
		},
	}
}
