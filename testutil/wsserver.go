package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// WSServer speaks the Home Assistant websocket protocol in front of a FakeBackend
type WSServer struct {
	Backend *FakeBackend
	Token   string
	Domain  string
	Version string

	server   *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

// NewWSServer starts a server; it is shut down when the test ends
func NewWSServer(t *testing.T, backend *FakeBackend, token string) *WSServer {
	t.Helper()
	s := &WSServer{
		Backend: backend,
		Token:   token,
		Domain:  "ai_code_task",
		Version: "2025.1.0",
		conns:   make(map[*websocket.Conn]struct{}),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the websocket endpoint
func (s *WSServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/websocket"
}

// DropConnections closes every client connection from the server side
func (s *WSServer) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// Close stops the server and waits for connection handlers
func (s *WSServer) Close() {
	s.DropConnections()
	s.server.Close()
	s.wg.Wait()
}

func (s *WSServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
		s.wg.Done()
	}()

	if !s.authenticate(conn) {
		return
	}

	var writeMu sync.Mutex
	for {
		var frame map[string]json.RawMessage
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		var id int64
		var typ string
		_ = json.Unmarshal(frame["id"], &id)
		_ = json.Unmarshal(frame["type"], &typ)
		delete(frame, "id")
		delete(frame, "type")

		reply := s.dispatch(context.Background(), id, typ, frame)
		writeMu.Lock()
		err := conn.WriteJSON(reply)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *WSServer) authenticate(conn *websocket.Conn) bool {
	if err := conn.WriteJSON(map[string]string{"type": "auth_required", "ha_version": s.Version}); err != nil {
		return false
	}
	var auth struct {
		Type        string `json:"type"`
		AccessToken string `json:"access_token"`
	}
	if err := conn.ReadJSON(&auth); err != nil {
		return false
	}
	if auth.Type != "auth" || auth.AccessToken != s.Token {
		_ = conn.WriteJSON(map[string]string{"type": "auth_invalid", "message": "Invalid access token"})
		return false
	}
	return conn.WriteJSON(map[string]string{"type": "auth_ok", "ha_version": s.Version}) == nil
}

func (s *WSServer) dispatch(ctx context.Context, id int64, typ string, payload map[string]json.RawMessage) map[string]any {
	if typ == "ping" {
		return map[string]any{"id": id, "type": "pong"}
	}

	op, ok := strings.CutPrefix(typ, s.Domain+"/")
	if !ok {
		return errorResult(id, "unknown_command", "Unknown command.")
	}

	result, err := s.Backend.Send(ctx, op, payload)
	if err != nil {
		return errorResult(id, "command_failed", err.Error())
	}
	return map[string]any{"id": id, "type": "result", "success": true, "result": result}
}

func errorResult(id int64, code, message string) map[string]any {
	return map[string]any{
		"id":      id,
		"type":    "result",
		"success": false,
		"error":   map[string]string{"code": code, "message": message},
	}
}
