// Package mcp defines the wire-level types of the Model Context Protocol
// subset spoken by linear-mcp: the initialization handshake and the tools
// capability. Types mirror the MCP schema names so payloads round-trip
// byte-compatibly with conforming clients.
package mcp
