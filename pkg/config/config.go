// Package config provides unified configuration for converser.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (CONVERSER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import (
	"time"

	"github.com/rhuss/converser/pkg/invoke/mcp"
	"github.com/rhuss/converser/pkg/provider"
)

// Config holds all configuration for converser.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Engine   EngineConfig   `yaml:"engine"`
	Storage  StorageConfig  `yaml:"storage"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// ProviderConfig holds LLM backend settings.
type ProviderConfig struct {
	Kind       string            `yaml:"kind"`         // "openai" or "anthropic", default: "openai"
	APIKey     string            `yaml:"api_key"`      // optional, SDK env vars apply when empty
	APIKeyFile string            `yaml:"api_key_file"` // _file variant for api_key
	BaseURL    string            `yaml:"base_url"`     // optional endpoint override
	Model      string            `yaml:"model"`        // required
	Controls   provider.Controls `yaml:"controls"`
}

// EngineConfig holds conversation driver settings.
type EngineConfig struct {
	MaxToolRounds     int           `yaml:"max_tool_rounds"`    // default: 10
	InvocationTimeout time.Duration `yaml:"invocation_timeout"` // default: 30s
	RateLimitRPS      float64       `yaml:"rate_limit_rps"`     // 0 disables rate limiting
}

// StorageConfig holds conversation log settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory", "file" or "postgres", default: "memory"
	File     FileConfig     `yaml:"file"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// FileConfig holds JSONL file log settings.
type FileConfig struct {
	Dir string `yaml:"dir"` // required when storage.type is "file"
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// MCPConfig holds MCP (Model Context Protocol) server settings.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes a single MCP server connection, extending the
// ensemble settings with secret file references.
type MCPServerConfig struct {
	mcp.ServerConfig `yaml:",inline"`

	ClientIDFile     string `yaml:"client_id_file"`     // _file variant for auth.client_id
	ClientSecretFile string `yaml:"client_secret_file"` // _file variant for auth.client_secret
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Provider: ProviderConfig{
			Kind: "openai",
		},
		Engine: EngineConfig{
			MaxToolRounds:     10,
			InvocationTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
	}
}
