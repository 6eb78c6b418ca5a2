package mcp

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the logical name for this server, used for logging and
	// identification when routing tool calls.
	Name string `json:"name" yaml:"name"`

	// Transport is the transport type to use: "sse" or "streamable-http".
	// If empty, defaults to "streamable-http".
	Transport string `json:"transport" yaml:"transport"`

	// URL is the MCP server endpoint URL.
	URL string `json:"url" yaml:"url"`

	// Headers contains additional HTTP headers to send with requests,
	// typically used for API key authentication.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Auth configures dynamic authentication for the connection.
	Auth AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig selects and parameterizes an authentication scheme.
type AuthConfig struct {
	// Type is the auth scheme: "" (none) or "oauth_client_credentials".
	Type string `json:"type" yaml:"type"`

	// TokenURL, ClientID, ClientSecret, and Scopes configure the OAuth 2.0
	// client_credentials grant.
	TokenURL     string   `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	ClientID     string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	Scopes       []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}
