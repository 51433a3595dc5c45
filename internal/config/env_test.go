package config

import (
	"strings"
	"testing"
)

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv("WorkspaceId", "ws-env")
	t.Setenv("SharedKey", testKey)
	t.Setenv("SENTINEL_CLOUD", "government")
	t.Setenv("SENTINEL_LOG_LEVEL", "warn")

	path := writeConfig(t, t.TempDir(), `
workspace:
  id: ws-file
  cloud: commercial
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workspace.ID != "ws-env" {
		t.Errorf("workspace.id = %q, want ws-env", cfg.Workspace.ID)
	}
	if cfg.Workspace.SharedKey != testKey {
		t.Error("shared key not taken from environment")
	}
	if cfg.Workspace.Cloud != "government" {
		t.Errorf("cloud = %q, want government", cfg.Workspace.Cloud)
	}
	if cfg.Service.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn", cfg.Service.LogLevel)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("WorkspaceId", "ws-env")
	t.Setenv("SharedKey", testKey)
	t.Setenv("SENTINEL_DEFAULT_TYPE", "generic")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.SourceFile != "" {
		t.Errorf("SourceFile = %q, want empty", cfg.SourceFile)
	}
	if cfg.Receiver.DefaultType != "generic" {
		t.Errorf("default type = %q", cfg.Receiver.DefaultType)
	}
	if err := cfg.ValidateCredentials(); err != nil {
		t.Errorf("ValidateCredentials() error = %v", err)
	}
}

func TestFromEnvWithoutCredentialsStillLoads(t *testing.T) {
	t.Setenv("WorkspaceId", "")
	t.Setenv("SharedKey", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if err := cfg.ValidateCredentials(); err == nil {
		t.Error("ValidateCredentials() should fail without credentials")
	}
}

func TestEnvUsage(t *testing.T) {
	usage := EnvUsage()
	for _, name := range []string{"WorkspaceId", "SharedKey", "SENTINEL_CLOUD"} {
		if !strings.Contains(usage, name) {
			t.Errorf("usage missing %s:\n%s", name, usage)
		}
	}
}

func TestApplyEnvReceiverSecret(t *testing.T) {
	t.Setenv("SENTINEL_RECEIVER_SECRET", "caller-secret")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Receiver.Secret != "caller-secret" {
		t.Errorf("receiver.secret = %q", cfg.Receiver.Secret)
	}
	if cfg.Receiver.SignatureHeader != "X-Signature-256" {
		t.Errorf("receiver.signature_header = %q", cfg.Receiver.SignatureHeader)
	}
}
