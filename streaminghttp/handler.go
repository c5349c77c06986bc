package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
	"github.com/halcyonic/linear-mcp/auth"
	"github.com/halcyonic/linear-mcp/internal/jsonrpc"
	"github.com/halcyonic/linear-mcp/internal/logctx"
	"github.com/halcyonic/linear-mcp/mcp"
	"github.com/halcyonic/linear-mcp/sessions"
	"github.com/halcyonic/linear-mcp/toolset"
)

var _ http.Handler = (*Handler)(nil)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	// Use canonical header names for clarity; Go matches headers case-insensitively.
	lastEventIDHeader     = "Last-Event-ID"
	mcpSessionIDHeader    = "Mcp-Session-Id"
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
)

const (
	invalidSessionMessage   = "Bad Request: No valid session ID provided"
	missingStreamSessionMsg = "Invalid or missing session ID"
	internalErrorMessage    = "Internal server error"
)

// Option configures the Handler.
type Option func(*newConfig)

type newConfig struct {
	serverName    string
	serverVersion string
	logger        *slog.Logger
	authenticator auth.Authenticator
	instructions  string
}

// WithServerName sets the implementation name advertised in initialize
// responses and the health probe. Defaults to "linear-mcp".
func WithServerName(name string) Option {
	return func(c *newConfig) { c.serverName = name }
}

// WithServerVersion sets the implementation version advertised in initialize
// responses.
func WithServerVersion(v string) Option {
	return func(c *newConfig) { c.serverVersion = v }
}

// WithLogger sets the slog logger used by the handler. If not provided, logs
// go to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *newConfig) { c.logger = log }
}

// WithAuthenticator requires callers to present a bearer token that the
// authenticator accepts on every /mcp request. Without this option the
// endpoint is open.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(c *newConfig) { c.authenticator = a }
}

// WithInstructions sets the instructions string returned from initialize.
func WithInstructions(s string) Option {
	return func(c *newConfig) { c.instructions = s }
}

// Handler is the protocol gateway. It demultiplexes by session id and message
// kind only; tool semantics live behind the toolset registry.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	registry *sessions.Registry
	tools    *toolset.Registry
	auth     auth.Authenticator

	serverInfo   mcp.ImplementationInfo
	instructions string
}

// New constructs the gateway over a session registry and a tool registry.
func New(registry *sessions.Registry, tools *toolset.Registry, opts ...Option) (*Handler, error) {
	if registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if tools == nil {
		return nil, fmt.Errorf("tool registry is required")
	}

	cfg := newConfig{
		serverName:    "linear-mcp",
		serverVersion: "0.0.0",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	h := &Handler{
		mux:      http.NewServeMux(),
		log:      cfg.logger,
		registry: registry,
		tools:    tools,
		auth:     cfg.authenticator,
		serverInfo: mcp.ImplementationInfo{
			Name:    cfg.serverName,
			Version: cfg.serverVersion,
		},
		instructions: cfg.instructions,
	}

	h.mux.HandleFunc("GET /health", h.handleGetHealth)
	h.mux.HandleFunc("POST /mcp", h.handlePostMCP)
	h.mux.HandleFunc("GET /mcp", h.handleGetMCP)
	h.mux.HandleFunc("DELETE /mcp", h.handleDeleteMCP)

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleGetHealth reports process liveness. No session or auth involved.
func (h *Handler) handleGetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": h.serverInfo.Name,
	})
}

// writeResponse writes one JSON-RPC response as a plain application/json
// body with the given HTTP status.
func (h *Handler) writeResponse(ctx context.Context, w http.ResponseWriter, status int, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.ErrorContext(ctx, "rpc.response.write.fail", slog.String("err", err.Error()))
	}
}

// writeRPCError is writeResponse for error envelopes. A nil id yields an
// explicit "id": null per JSON-RPC 2.0.
func (h *Handler) writeRPCError(ctx context.Context, w http.ResponseWriter, status int, id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) {
	h.writeResponse(ctx, w, status, jsonrpc.NewErrorResponse(id, code, msg, nil))
}

// handlePostMCP receives one JSON-RPC message and either initializes a
// session or routes the message to an existing one.
func (h *Handler) handlePostMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.DebugContext(ctx, "http.post.start")

	if !h.checkAuthentication(ctx, r, w) {
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		h.log.WarnContext(ctx, "content_type.unsupported")
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		h.log.WarnContext(ctx, "http.body.read.fail", slog.String("err", err.Error()))
		h.writeRPCError(ctx, w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeParseError, "Parse error")
		return
	}

	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		h.writeRPCError(ctx, w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeParseError, "Parse error")
		return
	}
	if len(raw) > 0 && raw[0] == '[' {
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		h.writeRPCError(ctx, w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "JSON-RPC batch arrays are not supported")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.log.WarnContext(ctx, "jsonrpc.message.invalid", slog.String("err", err.Error()))
		h.writeRPCError(ctx, w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request")
		return
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Type(),
	})

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		req := msg.AsRequest()
		if req == nil || req.Method != string(mcp.InitializeMethod) || req.ID.IsNil() {
			h.log.InfoContext(ctx, "session.address.invalid")
			h.writeRPCError(ctx, w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidSession, invalidSessionMessage)
			return
		}
		h.handleInitialize(ctx, w, req, start)
		return
	}

	sess, err := h.registry.Get(sessID)
	if err != nil {
		h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessID))
		h.writeRPCError(ctx, w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidSession, invalidSessionMessage)
		return
	}
	sess.Touch()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sess.ID(),
		State:     string(sess.State()),
	})

	req := msg.AsRequest()
	if req == nil {
		// Client-to-server response. This server issues no requests of its
		// own, so there is nothing to correlate; acknowledge and move on.
		w.WriteHeader(http.StatusAccepted)
		h.log.DebugContext(ctx, "response.inbound.ignored")
		return
	}

	if req.Method == string(mcp.InitializeMethod) {
		h.log.WarnContext(ctx, "session.initialize.redundant")
		h.writeRPCError(ctx, w, http.StatusConflict, req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized")
		return
	}

	if req.ID.IsNil() {
		h.handleNotification(ctx, w, sess, req)
		return
	}

	resp := h.handleRequest(ctx, sess, req)
	h.writeResponse(ctx, w, http.StatusOK, resp)
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

// handleInitialize mints a session, activates it with the negotiated
// protocol version, and returns the id in the response header.
func (h *Handler) handleInitialize(ctx context.Context, w http.ResponseWriter, req *jsonrpc.Request, start time.Time) {
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			h.log.InfoContext(ctx, "session.initialize.params.fail", slog.String("err", err.Error()))
			h.writeRPCError(ctx, w, http.StatusBadRequest, req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params")
			return
		}
	}

	sess := h.registry.Create()
	pv := negotiateProtocolVersion(initReq.ProtocolVersion)
	sess.Activate(pv)

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sess.ID(),
		State:     string(sess.State()),
	})

	initRes := mcp.InitializeResult{
		ProtocolVersion: pv,
		Capabilities: mcp.ServerCapabilities{
			Tools: &struct {
				ListChanged bool `json:"listChanged"`
			}{},
		},
		ServerInfo:   h.serverInfo,
		Instructions: h.instructions,
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		h.log.ErrorContext(ctx, "session.initialize.encode.fail", slog.String("err", err.Error()))
		h.registry.Remove(sess.ID())
		h.writeRPCError(ctx, w, http.StatusInternalServerError, req.ID, jsonrpc.ErrorCodeInternalError, internalErrorMessage)
		return
	}

	w.Header().Set(mcpSessionIDHeader, sess.ID())
	h.writeResponse(ctx, w, http.StatusOK, resp)
	h.log.InfoContext(ctx, "session.initialize.ok", slog.Duration("dur", time.Since(start)))
}

// handleNotification acknowledges protocol notifications. None of them carry
// server-side effects here beyond activity accounting.
func (h *Handler) handleNotification(ctx context.Context, w http.ResponseWriter, sess *sessions.Session, req *jsonrpc.Request) {
	switch req.Method {
	case string(mcp.InitializedNotificationMethod), string(mcp.CancelledNotificationMethod):
	default:
		h.log.DebugContext(ctx, "notification.inbound.unknown")
	}
	w.WriteHeader(http.StatusAccepted)
	h.log.DebugContext(ctx, "notification.inbound.ok")
}

// handleRequest answers one session-addressed request. Every path returns a
// response envelope whose id echoes the request id.
func (h *Handler) handleRequest(ctx context.Context, sess *sessions.Session, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case string(mcp.PingMethod):
		resp, err := jsonrpc.NewResultResponse(req.ID, struct{}{})
		if err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, internalErrorMessage, nil)
		}
		return resp

	case string(mcp.ToolsListMethod):
		resp, err := jsonrpc.NewResultResponse(req.ID, mcp.ListToolsResult{Tools: h.tools.Descriptors()})
		if err != nil {
			h.log.ErrorContext(ctx, "tools.list.encode.fail", slog.String("err", err.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, internalErrorMessage, nil)
		}
		h.log.InfoContext(ctx, "tools.list.ok")
		return resp

	case string(mcp.ToolsCallMethod):
		return h.handleToolsCall(ctx, req)

	default:
		h.log.InfoContext(ctx, "rpc.method.unknown")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

func (h *Handler) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var callReq mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &callReq); err != nil {
		h.log.InfoContext(ctx, "tools.call.params.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/call params", nil)
	}
	if callReq.Name == "" {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "tool name is required", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: callReq.Name})
	h.log.InfoContext(ctx, "tools.call.start")

	res, err := h.tools.Dispatch(ctx, &callReq)
	if err != nil {
		var nfe *toolset.NotFoundError
		if errors.As(err, &nfe) {
			h.log.InfoContext(ctx, "tools.call.unknown")
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", nfe.Name), nil)
		}
		h.log.ErrorContext(ctx, "tools.call.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, internalErrorMessage, nil)
	}

	resp, mErr := jsonrpc.NewResultResponse(req.ID, res)
	if mErr != nil {
		h.log.ErrorContext(ctx, "tools.call.encode.fail", slog.String("err", mErr.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, internalErrorMessage, nil)
	}
	h.log.InfoContext(ctx, "tools.call.ok")
	return resp
}

// handleGetMCP attaches the session's push channel as an SSE stream.
func (h *Handler) handleGetMCP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if !h.checkAuthentication(ctx, r, w) {
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.log.WarnContext(ctx, "session.id.missing")
		http.Error(w, missingStreamSessionMsg, http.StatusBadRequest)
		return
	}
	sess, err := h.registry.Get(sessID)
	if err != nil {
		h.log.InfoContext(ctx, "session.load.miss", slog.String("session_id", sessID))
		http.Error(w, missingStreamSessionMsg, http.StatusBadRequest)
		return
	}
	sess.Touch()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID: sess.ID(),
		State:     string(sess.State()),
	})

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		http.Error(w, "accept must include text/event-stream", http.StatusNotAcceptable)
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	lastEventID := r.Header.Get(lastEventIDHeader)

	// Claim the consumer slot before committing the response so a duplicate
	// attach gets a real status instead of a stream that instantly ends.
	stream, err := sess.Transport().Attach()
	if err != nil {
		if errors.Is(err, sessions.ErrStreamAttached) {
			h.log.WarnContext(ctx, "sse.stream.duplicate")
			http.Error(w, "session already has an active stream", http.StatusConflict)
			return
		}
		h.log.InfoContext(ctx, "sse.stream.closed")
		http.Error(w, missingStreamSessionMsg, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	h.log.InfoContext(ctx, "sse.stream.start")

	err = stream.Run(ctx, lastEventID, func(cbCtx context.Context, msgID string, payload []byte) error {
		if err := writeSSEEvent(wf, msgID, payload); err != nil {
			h.log.ErrorContext(cbCtx, "sse.write.fail", slog.String("err", err.Error()))
			return err
		}
		h.log.DebugContext(cbCtx, "sse.message.deliver")
		return nil
	})
	sess.Touch()
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
	default:
		h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
	}
}

// handleDeleteMCP terminates a session explicitly.
func (h *Handler) handleDeleteMCP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.checkAuthentication(ctx, r, w) {
		return
	}

	sessID := r.Header.Get(mcpSessionIDHeader)
	if sessID == "" {
		h.log.WarnContext(ctx, "session.id.missing")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := h.registry.Get(sessID); err != nil {
		h.log.InfoContext(ctx, "session.delete.miss", slog.String("session_id", sessID))
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.registry.Remove(sessID)
	h.log.InfoContext(ctx, "session.delete.ok", slog.String("session_id", sessID))
	w.WriteHeader(http.StatusNoContent)
}

// checkAuthentication enforces the optional bearer check. It reports whether
// the request may proceed; on failure the response has already been written.
func (h *Handler) checkAuthentication(ctx context.Context, r *http.Request, w http.ResponseWriter) bool {
	if h.auth == nil {
		return true
	}

	authHeader := r.Header.Get(authorizationHeader)
	if authHeader == "" {
		h.log.InfoContext(ctx, "auth.check.missing")
		w.Header().Set(wwwAuthenticateHeader, "Bearer")
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		h.log.InfoContext(ctx, "auth.check.invalid", slog.String("err", "malformed bearer authorization header"))
		w.Header().Set(wwwAuthenticateHeader, `Bearer error="invalid_request"`)
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	tok := strings.TrimSpace(authHeader[len(bearerPrefix):])

	if _, err := h.auth.CheckAuthentication(ctx, tok); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.log.InfoContext(ctx, "auth.check.fail", slog.String("err", err.Error()))
			w.Header().Set(wwwAuthenticateHeader, `Bearer error="invalid_token"`)
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		h.log.ErrorContext(ctx, "auth.check.err", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return false
	}

	return true
}

// negotiateProtocolVersion echoes a supported client version, otherwise
// answers with the latest revision this server speaks.
func negotiateProtocolVersion(requested string) string {
	switch requested {
	case "2024-11-05", "2025-03-26", mcp.LatestProtocolVersion:
		return requested
	default:
		return mcp.LatestProtocolVersion
	}
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an
// optional context. It serializes concurrent writes/flushes and avoids
// writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Re-check after acquiring the lock to minimize races with cancellation
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes one Server-Sent Event frame and flushes it.
func writeSSEEvent(wf *lockedWriteFlusher, msgID string, payload []byte) error {
	if msgID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", msgID); err != nil {
			return fmt.Errorf("failed to write SSE event ID: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}
