// Package streaminghttp is the HTTP-facing protocol gateway. It classifies
// each inbound request as a new-session initialization, an existing-session
// message, or a push-channel attach, and delegates to the session registry
// and tool dispatch accordingly.
//
// The surface is three routes on one handler:
//
//   - POST /mcp: one JSON-RPC message per request. Without a session header
//     only an initialize request is accepted; it mints a session and returns
//     its id in the Mcp-Session-Id response header. With a known session
//     header, requests are answered with a single application/json response
//     and notifications are acknowledged with 202.
//   - GET /mcp: attaches the session's push channel as a text/event-stream,
//     resuming after Last-Event-ID when supplied.
//   - GET /health: liveness probe.
//
// DELETE /mcp terminates a session explicitly.
package streaminghttp
