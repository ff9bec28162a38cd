// Package transport connects the session controllers to a Home Assistant
// style websocket API.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iksnae/codetask-session/internal"
)

// Options configures the websocket transport
type Options struct {
	// URL is the websocket endpoint (e.g., "ws://homeassistant.local:8123/api/websocket")
	URL string
	// Token is the long-lived access token sent in the auth frame
	Token string
	// Domain prefixes every command type (default: "ai_code_task")
	Domain string
	// HandshakeTimeout bounds dialing and authentication (default: 10s)
	HandshakeTimeout time.Duration
}

type authFrame struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token,omitempty"`
	HAVersion   string `json:"ha_version,omitempty"`
	Message     string `json:"message,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type resultFrame struct {
	ID      int64           `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *errorBody      `json:"error,omitempty"`
}

type response struct {
	frame resultFrame
	err   error
}

// pendingRequest is a request waiting for its result on conn
type pendingRequest struct {
	conn *websocket.Conn
	ch   chan response
}

// WebSocket implements internal.Transport. It connects lazily and
// reconnects on the next call after the connection drops.
type WebSocket struct {
	opts Options

	connMu    sync.Mutex
	conn      *websocket.Conn
	haVersion string
	closed    bool

	writeMu   sync.Mutex
	requestID atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]pendingRequest
}

var _ internal.Transport = (*WebSocket)(nil)

// New creates an unconnected transport
func New(opts Options) *WebSocket {
	if opts.Domain == "" {
		opts.Domain = internal.DefaultDomain
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	return &WebSocket{
		opts:    opts,
		pending: make(map[int64]pendingRequest),
	}
}

// Dial creates a transport and connects it
func Dial(ctx context.Context, opts Options) (*WebSocket, error) {
	w := New(opts)
	if _, err := w.connect(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// HAVersion returns the server version announced during the handshake
func (w *WebSocket) HAVersion() string {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.haVersion
}

// Connected reports whether a live connection exists
func (w *WebSocket) Connected() bool {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.conn != nil
}

func (w *WebSocket) connect(ctx context.Context) (*websocket.Conn, error) {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if w.closed {
		return nil, internal.ErrNotConnected
	}
	if w.conn != nil {
		return w.conn, nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: w.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", w.opts.URL, err)
	}

	version, err := authenticate(conn, w.opts.Token, w.opts.HandshakeTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}

	w.conn = conn
	w.haVersion = version
	internal.LogDebug("Connected to %s (version %s)", w.opts.URL, version)

	// Start message reader
	go w.readMessages(conn)

	return conn, nil
}

func authenticate(conn *websocket.Conn, token string, timeout time.Duration) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	var hello authFrame
	if err := conn.ReadJSON(&hello); err != nil {
		return "", fmt.Errorf("failed to read auth request: %w", err)
	}
	if hello.Type != "auth_required" {
		return "", fmt.Errorf("unexpected handshake frame: %s", hello.Type)
	}

	if err := conn.WriteJSON(authFrame{Type: "auth", AccessToken: token}); err != nil {
		return "", fmt.Errorf("failed to send auth: %w", err)
	}

	var reply authFrame
	if err := conn.ReadJSON(&reply); err != nil {
		return "", fmt.Errorf("failed to read auth result: %w", err)
	}
	switch reply.Type {
	case "auth_ok":
		if reply.HAVersion != "" {
			return reply.HAVersion, nil
		}
		return hello.HAVersion, nil
	case "auth_invalid":
		return "", &internal.RemoteError{Code: "auth_invalid", Message: reply.Message}
	default:
		return "", fmt.Errorf("unexpected auth result: %s", reply.Type)
	}
}

// Send issues "<domain>/<op>" with the payload's fields and waits for its result
func (w *WebSocket) Send(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	frame, err := w.roundTrip(ctx, w.opts.Domain+"/"+op, payload)
	if err != nil {
		return nil, err
	}
	if !frame.Success {
		if frame.Error == nil {
			return nil, &internal.RemoteError{Code: "unknown_error", Message: op + " failed"}
		}
		return nil, &internal.RemoteError{Code: frame.Error.Code, Message: frame.Error.Message}
	}
	return frame.Result, nil
}

// Ping checks that the server answers on the current connection
func (w *WebSocket) Ping(ctx context.Context) error {
	frame, err := w.roundTrip(ctx, "ping", nil)
	if err != nil {
		return err
	}
	if frame.Type != "pong" {
		return fmt.Errorf("unexpected ping reply: %s", frame.Type)
	}
	return nil
}

func (w *WebSocket) roundTrip(ctx context.Context, typ string, payload any) (resultFrame, error) {
	conn, err := w.connect(ctx)
	if err != nil {
		return resultFrame{}, err
	}

	id := w.requestID.Add(1)
	msg, err := commandFrame(id, typ, payload)
	if err != nil {
		return resultFrame{}, err
	}

	// Create response channel
	respChan := make(chan response, 1)
	w.pendingMu.Lock()
	w.pending[id] = pendingRequest{conn: conn, ch: respChan}
	w.pendingMu.Unlock()

	// Cleanup on exit
	defer func() {
		w.pendingMu.Lock()
		delete(w.pending, id)
		w.pendingMu.Unlock()
	}()

	w.writeMu.Lock()
	err = conn.WriteJSON(msg)
	w.writeMu.Unlock()
	if err != nil {
		w.drop(conn, err)
		return resultFrame{}, fmt.Errorf("failed to send %s: %w", typ, err)
	}

	select {
	case resp := <-respChan:
		return resp.frame, resp.err
	case <-ctx.Done():
		return resultFrame{}, ctx.Err()
	}
}

// commandFrame merges the payload's fields with the id and type
func commandFrame(id int64, typ string, payload any) (map[string]any, error) {
	msg := map[string]any{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
		}
		if string(data) != "null" {
			if err := json.Unmarshal(data, &msg); err != nil {
				return nil, fmt.Errorf("%s payload must be an object: %w", typ, err)
			}
		}
	}
	msg["id"] = id
	msg["type"] = typ
	return msg, nil
}

// readMessages dispatches result frames to waiting requests until the connection fails
func (w *WebSocket) readMessages(conn *websocket.Conn) {
	for {
		var frame resultFrame
		if err := conn.ReadJSON(&frame); err != nil {
			w.drop(conn, err)
			return
		}

		if frame.Type != "result" && frame.Type != "pong" {
			continue
		}

		w.pendingMu.Lock()
		req, ok := w.pending[frame.ID]
		if ok && req.conn == conn {
			delete(w.pending, frame.ID)
		} else {
			ok = false
		}
		w.pendingMu.Unlock()
		if ok {
			req.ch <- response{frame: frame}
		}
	}
}

// drop forgets a failed connection and fails the requests sent on it
func (w *WebSocket) drop(conn *websocket.Conn, cause error) {
	w.connMu.Lock()
	if w.conn == conn {
		w.conn = nil
		conn.Close()
		internal.LogDebug("Connection to %s lost: %v", w.opts.URL, cause)
	}
	w.connMu.Unlock()

	w.failPending(conn, fmt.Errorf("connection lost: %w", cause))
}

// failPending fails the requests sent on conn, or all of them when conn is nil
func (w *WebSocket) failPending(conn *websocket.Conn, err error) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for id, req := range w.pending {
		if conn != nil && req.conn != conn {
			continue
		}
		req.ch <- response{err: err}
		delete(w.pending, id)
	}
}

// Close closes the connection; later calls fail with internal.ErrNotConnected
func (w *WebSocket) Close() error {
	w.connMu.Lock()
	w.closed = true
	conn := w.conn
	w.conn = nil
	w.connMu.Unlock()

	w.failPending(nil, internal.ErrNotConnected)
	if conn == nil {
		return nil
	}
	w.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.writeMu.Unlock()
	return conn.Close()
}
