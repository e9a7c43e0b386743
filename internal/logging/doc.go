// Package logging configures Parley's structured slog output.
//
// Records are JSON, written to a size-rotated file under ~/.parley/logs/ and
// optionally mirrored to stderr. The MCP server mode never touches stderr or
// stdout because stdout carries the JSON-RPC stream.
package logging
