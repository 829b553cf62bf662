// Package api provides an HTTP API server for branch-aware conversation memory.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// DisableMCP skips mounting the MCP server at /mcp
	DisableMCP bool
}
