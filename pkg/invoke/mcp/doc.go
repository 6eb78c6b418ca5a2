// Package mcp exposes the tools of a Model Context Protocol server as an
// invoke.Ensemble. Connecting performs the protocol handshake and tool
// discovery; each discovered tool becomes an invoker that routes calls
// through the MCP session.
package mcp
