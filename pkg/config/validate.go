package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// provider.kind must be a known value.
	switch c.Provider.Kind {
	case "openai", "anthropic":
		// valid
	default:
		errs = append(errs, fmt.Errorf("provider.kind must be \"openai\" or \"anthropic\", got %q", c.Provider.Kind))
	}

	// provider.model is required.
	if c.Provider.Model == "" {
		errs = append(errs, fmt.Errorf("provider.model is required"))
	}

	if c.Engine.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("engine.max_tool_rounds must be >= 0, got %d", c.Engine.MaxToolRounds))
	}
	if c.Engine.InvocationTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.invocation_timeout must be >= 0"))
	}
	if c.Engine.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("engine.rate_limit_rps must be >= 0, got %v", c.Engine.RateLimitRPS))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "file", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\", \"file\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "file", a directory must be set.
	if c.Storage.Type == "file" && c.Storage.File.Dir == "" {
		errs = append(errs, fmt.Errorf("storage.file.dir is required when storage.type is \"file\""))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// MCP servers need at least a name and URL.
	for i, srv := range c.MCP.Servers {
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].name is required", i))
		}
		if srv.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.servers[%d].url is required", i))
		}
		switch srv.Transport {
		case "", "sse", "streamable-http":
			// valid
		default:
			errs = append(errs, fmt.Errorf("mcp.servers[%d].transport must be \"sse\" or \"streamable-http\", got %q", i, srv.Transport))
		}
	}

	return errors.Join(errs...)
}
