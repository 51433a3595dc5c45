package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// envOverlay lists the environment variables that override file values.
// WorkspaceId and SharedKey keep the names the function host used.
type envOverlay struct {
	WorkspaceID string `env:"WorkspaceId" env-description:"Log Analytics workspace id"`
	SharedKey   string `env:"SharedKey" env-description:"base64 workspace shared key"`
	Cloud       string `env:"SENTINEL_CLOUD" env-description:"commercial or government"`
	Listen      string `env:"SENTINEL_LISTEN" env-description:"receiver listen address"`
	LogLevel    string `env:"SENTINEL_LOG_LEVEL" env-description:"debug, info, warn or error"`
	LogFormat   string `env:"SENTINEL_LOG_FORMAT" env-description:"json or text"`
	DefaultType string `env:"SENTINEL_DEFAULT_TYPE" env-description:"type label used when the request names none"`
	Endpoint    string `env:"SENTINEL_INGEST_ENDPOINT" env-description:"collector base URL override"`
	Secret      string `env:"SENTINEL_RECEIVER_SECRET" env-description:"HMAC secret callers sign request bodies with"`
}

// ApplyEnv overlays non-empty environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverlay
	if err := cleanenv.ReadEnv(&env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	setIfNotEmpty(&cfg.Workspace.ID, env.WorkspaceID)
	setIfNotEmpty(&cfg.Workspace.SharedKey, env.SharedKey)
	setIfNotEmpty(&cfg.Workspace.Cloud, env.Cloud)
	setIfNotEmpty(&cfg.Listen, env.Listen)
	setIfNotEmpty(&cfg.Service.LogLevel, env.LogLevel)
	setIfNotEmpty(&cfg.Service.LogFormat, env.LogFormat)
	setIfNotEmpty(&cfg.Receiver.DefaultType, env.DefaultType)
	setIfNotEmpty(&cfg.Ingest.Endpoint, env.Endpoint)
	setIfNotEmpty(&cfg.Receiver.Secret, env.Secret)
	return nil
}

// EnvUsage describes the environment variables ApplyEnv reads.
func EnvUsage() string {
	var env envOverlay
	header := "Environment variables:"
	text, err := cleanenv.GetDescription(&env, &header)
	if err != nil {
		return header
	}
	return text
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
