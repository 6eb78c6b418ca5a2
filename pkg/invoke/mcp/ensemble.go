package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/converser/pkg/api"
	"github.com/rhuss/converser/pkg/debug"
	"github.com/rhuss/converser/pkg/invoke"
)

// Ensemble exposes one MCP server's tools as invokers. Connect performs the
// handshake and discovers the tool list; the discovered invokers route their
// calls through the shared session.
type Ensemble struct {
	cfg ServerConfig

	mu       sync.Mutex
	client   *sdk.Client
	session  *sdk.ClientSession
	invokers []invoke.Invoker
	byName   map[string]invoke.Invoker
}

var _ invoke.Ensemble = (*Ensemble)(nil)

// NewEnsemble creates an ensemble for the given server configuration.
// Call Connect before use.
func NewEnsemble(cfg ServerConfig) *Ensemble {
	return &Ensemble{cfg: cfg}
}

// Name returns the configured server name.
func (e *Ensemble) Name() string { return e.cfg.Name }

// Connect establishes the MCP connection and discovers tools. Connecting an
// already connected ensemble is a no-op.
func (e *Ensemble) Connect(ctx context.Context) error {
	return e.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport establishes the MCP connection using the given
// transport. If transport is nil, one is created from the server
// configuration. Exposed for tests using in-memory transports.
func (e *Ensemble) ConnectWithTransport(ctx context.Context, transport sdk.Transport) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil {
		return nil
	}

	e.client = sdk.NewClient(
		&sdk.Implementation{
			Name:    "converser",
			Version: "1.0.0",
		},
		&sdk.ClientOptions{
			Capabilities: &sdk.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := e.createTransport()
		if err != nil {
			return &api.EnsembleConnectionError{Ensemble: e.cfg.Name, Err: err}
		}
		transport = t
	}

	session, err := e.client.Connect(ctx, transport, nil)
	if err != nil {
		return &api.EnsembleConnectionError{Ensemble: e.cfg.Name, Err: err}
	}
	e.session = session

	if err := e.discoverLocked(ctx); err != nil {
		session.Close()
		e.session = nil
		return &api.EnsembleConnectionError{Ensemble: e.cfg.Name, Err: err}
	}
	return nil
}

// Disconnect closes the MCP session. Idempotent.
func (e *Ensemble) Disconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		return nil
	}
	err := e.session.Close()
	e.session = nil
	e.invokers = nil
	e.byName = nil
	return err
}

// Invokers lists the discovered invokers. Empty while disconnected.
func (e *Ensemble) Invokers() []invoke.Invoker {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]invoke.Invoker, len(e.invokers))
	copy(out, e.invokers)
	return out
}

// Lookup finds a discovered invoker by name.
func (e *Ensemble) Lookup(name string) (invoke.Invoker, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	inv, ok := e.byName[name]
	return inv, ok
}

// discoverLocked queries the server's tool list and builds invokers.
// Caller holds e.mu.
func (e *Ensemble) discoverLocked(ctx context.Context) error {
	e.invokers = nil
	e.byName = make(map[string]invoke.Invoker)

	for tool, err := range e.session.Tools(ctx, nil) {
		if err != nil {
			return fmt.Errorf("listing tools from %q: %w", e.cfg.Name, err)
		}
		inv, convErr := e.buildInvoker(tool)
		if convErr != nil {
			return fmt.Errorf("converting tool %q from %q: %w", tool.Name, e.cfg.Name, convErr)
		}
		e.invokers = append(e.invokers, inv)
		e.byName[inv.Name] = inv
	}
	return nil
}

// buildInvoker converts an MCP tool into an invoker that calls through the
// session. Transport and tool-level failures surface as tool errors the
// model can react to; only a missing session is treated as raised.
func (e *Ensemble) buildInvoker(tool *sdk.Tool) (invoke.Invoker, error) {
	schema, err := schemaToMap(tool.InputSchema)
	if err != nil {
		return invoke.Invoker{}, err
	}

	name := tool.Name
	return invoke.Invoker{
		Name:        name,
		Description: tool.Description,
		Schema:      schema,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return e.call(ctx, name, args)
		},
	}, nil
}

// call executes one tool call over the session.
func (e *Ensemble) call(ctx context.Context, name string, args map[string]any) (string, error) {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return "", fmt.Errorf("ensemble %q not connected", e.cfg.Name)
	}

	if args == nil {
		args = map[string]any{}
	}
	debug.Log("mcp", "calling tool", "ensemble", e.cfg.Name, "tool", name)
	result, err := session.CallTool(ctx, &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", invoke.NewToolError(fmt.Sprintf("MCP tool call error: %v", err))
	}

	output := joinTextContent(result.Content)
	if result.IsError {
		return "", invoke.NewToolError(output)
	}
	return output, nil
}

// createTransport creates an MCP transport based on the server configuration.
func (e *Ensemble) createTransport() (sdk.Transport, error) {
	httpClient := e.buildHTTPClient()

	switch e.cfg.Transport {
	case "sse":
		transport := &sdk.SSEClientTransport{Endpoint: e.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &sdk.StreamableClientTransport{Endpoint: e.cfg.URL}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", e.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client that injects static headers and
// auth-provider headers. Returns nil when neither is configured.
func (e *Ensemble) buildHTTPClient() *http.Client {
	var authProvider AuthProvider
	if e.cfg.Auth.Type == "oauth_client_credentials" {
		authProvider = NewOAuthClientCredentials(
			e.cfg.Auth.TokenURL,
			e.cfg.Auth.ClientID,
			e.cfg.Auth.ClientSecret,
			e.cfg.Auth.Scopes,
		)
	}

	if len(e.cfg.Headers) == 0 && authProvider == nil {
		return nil
	}
	return &http.Client{
		Transport: &authAwareTransport{
			base:         http.DefaultTransport,
			headers:      e.cfg.Headers,
			authProvider: authProvider,
		},
	}
}

// authAwareTransport adds static headers and dynamically obtained auth
// headers to every request.
type authAwareTransport struct {
	base         http.RoundTripper
	headers      map[string]string
	authProvider AuthProvider
}

func (t *authAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	// Auth headers may override static ones, e.g. Authorization.
	if t.authProvider != nil {
		authHeaders, err := t.authProvider.GetHeaders(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// schemaToMap converts the SDK's schema representation into a plain map.
func schemaToMap(schema any) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshaling input schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing input schema: %w", err)
	}
	return out, nil
}

// joinTextContent extracts and joins the text parts of a tool result.
func joinTextContent(content []sdk.Content) string {
	var output string
	for _, c := range content {
		if tc, ok := c.(*sdk.TextContent); ok {
			if output != "" {
				output += "\n"
			}
			output += tc.Text
		}
	}
	return output
}
