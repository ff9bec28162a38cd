package transport

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/iksnae/codetask-session/internal"
	"github.com/iksnae/codetask-session/testutil"
)

const testToken = "secret"

func newTestTransport(t *testing.T) (*WebSocket, *testutil.WSServer) {
	t.Helper()
	backend := testutil.NewFakeBackend()
	server := testutil.NewWSServer(t, backend, testToken)
	ws := New(Options{URL: server.URL(), Token: testToken, HandshakeTimeout: 2 * time.Second})
	t.Cleanup(func() { ws.Close() })
	return ws, server
}

func TestDial(t *testing.T) {
	backend := testutil.NewFakeBackend()
	server := testutil.NewWSServer(t, backend, testToken)

	ws, err := Dial(context.Background(), Options{URL: server.URL(), Token: testToken})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer ws.Close()

	if !ws.Connected() {
		t.Error("Connected() = false after Dial")
	}
	if ws.HAVersion() != "2025.1.0" {
		t.Errorf("HAVersion() = %q, want 2025.1.0", ws.HAVersion())
	}
}

func TestDial_InvalidToken(t *testing.T) {
	backend := testutil.NewFakeBackend()
	server := testutil.NewWSServer(t, backend, testToken)

	_, err := Dial(context.Background(), Options{URL: server.URL(), Token: "wrong"})
	var remote *internal.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Dial() error = %v, want RemoteError", err)
	}
	if remote.Code != "auth_invalid" || remote.Message != "Invalid access token" {
		t.Errorf("RemoteError = %+v", remote)
	}
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "ws://127.0.0.1:1/api/websocket", HandshakeTimeout: time.Second})
	if err == nil || !strings.Contains(err.Error(), "failed to connect") {
		t.Errorf("Dial() error = %v, want a connection failure", err)
	}
}

func TestWebSocket_Send(t *testing.T) {
	ws, server := newTestTransport(t)
	server.Backend.WriteFile("scripts/hello.py", "print('hello')")
	ctx := context.Background()

	tests := []struct {
		name    string
		op      string
		payload any
		want    string
	}{
		{"providers", "get_providers", nil, `{"providers":{"openai":"OpenAI","anthropic":"Anthropic"},"default_provider":"openai"}`},
		{"read", "file_read", map[string]string{"path": "scripts/hello.py"}, `{"content":"print('hello')"}`},
		{"save", "file_save", map[string]string{"path": "out.py", "content": "x = 1"}, `{"success":true}`},
		{"generate", "generate", map[string]string{"prompt": "hi", "provider_id": "anthropic"}, `{"provider_name":"Anthropic","response_code":"","response_text":"echo: hi"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ws.Send(ctx, tt.op, tt.payload)
			if err != nil {
				t.Fatalf("Send(%s) error = %v", tt.op, err)
			}
			var got, want any
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("result is not JSON: %v", err)
			}
			_ = json.Unmarshal([]byte(tt.want), &want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Send(%s) mismatch (-want +got):\n%s", tt.op, diff)
			}
		})
	}

	if content, _ := server.Backend.ReadFile("out.py"); content != "x = 1" {
		t.Errorf("saved file = %q, want %q", content, "x = 1")
	}
}

func TestWebSocket_RemoteError(t *testing.T) {
	ws, server := newTestTransport(t)
	server.Backend.FailNext("sync_history", 1)

	_, err := ws.Send(context.Background(), "sync_history", map[string]any{"limit": 50})
	var remote *internal.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Send() error = %v, want RemoteError", err)
	}
	if remote.Code != "command_failed" || !strings.Contains(remote.Message, "injected failure") {
		t.Errorf("RemoteError = %+v", remote)
	}

	if _, err := ws.Send(context.Background(), "sync_history", map[string]any{"limit": 50}); err != nil {
		t.Errorf("Send() after failure error = %v", err)
	}
}

func TestWebSocket_Reconnect(t *testing.T) {
	ws, server := newTestTransport(t)
	ctx := context.Background()

	if err := ws.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	server.DropConnections()
	deadline := time.Now().Add(2 * time.Second)
	for ws.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ws.Connected() {
		t.Fatal("Connected() = true after the server dropped the connection")
	}

	if _, err := ws.Send(ctx, "get_config", nil); err != nil {
		t.Errorf("Send() after drop error = %v", err)
	}
	if !ws.Connected() {
		t.Error("Connected() = false after reconnecting")
	}
}

func TestWebSocket_ContextCanceled(t *testing.T) {
	ws, _ := newTestTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := ws.Send(ctx, "get_config", nil); err == nil {
		t.Error("Send() with canceled context error = nil")
	}
}

func TestWebSocket_Close(t *testing.T) {
	ws, _ := newTestTransport(t)
	ctx := context.Background()

	if err := ws.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := ws.Send(ctx, "get_config", nil); !errors.Is(err, internal.ErrNotConnected) {
		t.Errorf("Send() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestCommandFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    map[string]any
		wantErr bool
	}{
		{"nil payload", nil, map[string]any{"id": int64(7), "type": "ai_code_task/get_config"}, false},
		{"struct payload", struct {
			Path string `json:"path"`
		}{"a.py"}, map[string]any{"id": int64(7), "type": "ai_code_task/get_config", "path": "a.py"}, false},
		{"non-object payload", []string{"x"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := commandFrame(7, "ai_code_task/get_config", tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("commandFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("commandFrame() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWebSocket_DropFailsOnlyItsOwnRequests(t *testing.T) {
	w := New(Options{URL: "ws://127.0.0.1:1/api/websocket", Token: testToken})
	stale, current := &websocket.Conn{}, &websocket.Conn{}
	staleCh, currentCh := make(chan response, 1), make(chan response, 1)
	w.pending[1] = pendingRequest{conn: stale, ch: staleCh}
	w.pending[2] = pendingRequest{conn: current, ch: currentCh}

	w.drop(stale, errors.New("unexpected EOF"))

	select {
	case resp := <-staleCh:
		if resp.err == nil || !strings.Contains(resp.err.Error(), "connection lost") {
			t.Errorf("stale request error = %v, want connection lost", resp.err)
		}
	default:
		t.Error("request on the dropped connection was not failed")
	}
	select {
	case resp := <-currentCh:
		t.Errorf("request on the live connection failed: %v", resp.err)
	default:
	}
	if _, ok := w.pending[2]; !ok {
		t.Error("request on the live connection was removed from pending")
	}

	_ = w.Close()
	if resp := <-currentCh; !errors.Is(resp.err, internal.ErrNotConnected) {
		t.Errorf("Close() failed pending request with %v, want ErrNotConnected", resp.err)
	}
}
