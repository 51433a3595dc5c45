package config

import (
	"github.com/mattjoyce/sentinel-relay/internal/ingest"
	"github.com/mattjoyce/sentinel-relay/internal/normalize"
)

// IngestConfig returns the forwarder settings.
func (c *Config) IngestConfig() ingest.Config {
	// Cloud was validated during Load.
	cloud, _ := ingest.ParseCloud(c.Workspace.Cloud)
	return ingest.Config{
		Credentials: ingest.Credentials{
			WorkspaceID: c.Workspace.ID,
			SharedKey:   c.Workspace.SharedKey,
		},
		Cloud:              cloud,
		APIVersion:         c.Ingest.APIVersion,
		LogTypePrefix:      c.Ingest.LogTypePrefix,
		TimeGeneratedField: c.Ingest.TimeGeneratedField,
		Endpoint:           c.Ingest.Endpoint,
	}
}

// NormalizeOptions returns the request normalizer settings.
func (c *Config) NormalizeOptions() normalize.Options {
	return normalize.Options{
		DefaultLabel: c.Receiver.DefaultType,
		MaxBodySize:  c.Receiver.MaxBodyBytes,
	}
}

// Redacted returns a copy safe to print: secrets are masked.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Workspace.SharedKey != "" {
		cp.Workspace.SharedKey = "********"
	}
	if cp.Receiver.Secret != "" {
		cp.Receiver.Secret = "********"
	}
	return &cp
}
