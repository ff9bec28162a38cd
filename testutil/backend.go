package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// ErrInjected is returned by operations failed with FailNext
var ErrInjected = errors.New("injected failure")

// Call records one request received by the fake backend
type Call struct {
	Op      string
	Payload json.RawMessage
}

// ProviderEntry is one provider offered by the fake backend
type ProviderEntry struct {
	ID   string
	Name string
}

// GenerateRequest is the generate payload as seen by the backend
type GenerateRequest struct {
	Prompt          string              `json:"prompt"`
	ProviderID      string              `json:"provider_id"`
	Attachments     []map[string]string `json:"attachments"`
	IncludeEntities []string            `json:"include_entities"`
	FilePath        string              `json:"file_path"`
	Code            string              `json:"code"`
	UserID          string              `json:"user_id"`
}

// GenerateReply is what the fake backend answers to generate
type GenerateReply struct {
	Text     string
	Code     string
	Provider string
}

// FakeBackend implements the backend operations in memory. Remote files
// live on an afero in-memory filesystem rooted at "/".
type FakeBackend struct {
	mu sync.Mutex

	Fs              afero.Fs
	Providers       []ProviderEntry
	DefaultProvider string
	AllowedFiles    map[string][]string
	ExcludedFiles   []string
	History         map[string][]HistoryMessage

	// Generate computes replies; by default it echoes the prompt
	Generate func(req GenerateRequest) (GenerateReply, error)
	// Now returns the timestamp (seconds) recorded for history entries
	Now func() float64

	failures map[string]int
	calls    []Call
	clock    float64
}

// NewFakeBackend creates a backend with two providers and default file types
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{
		Fs: afero.NewMemMapFs(),
		Providers: []ProviderEntry{
			{ID: "openai", Name: "OpenAI"},
			{ID: "anthropic", Name: "Anthropic"},
		},
		DefaultProvider: "openai",
		AllowedFiles:    DefaultAllowedFiles(),
		ExcludedFiles:   []string{"secrets.yaml"},
		History:         make(map[string][]HistoryMessage),
		failures:        make(map[string]int),
		clock:           1700000000,
	}
	b.Now = func() float64 {
		b.clock++
		return b.clock
	}
	return b
}

// FailNext makes the next n calls of op fail
func (b *FakeBackend) FailNext(op string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = n
}

// WriteFile creates a remote file
func (b *FakeBackend) WriteFile(name, content string) {
	p := path.Join("/", name)
	_ = b.Fs.MkdirAll(path.Dir(p), 0o755)
	_ = afero.WriteFile(b.Fs, p, []byte(content), 0o644)
}

// ReadFile returns a remote file's content
func (b *FakeBackend) ReadFile(name string) (string, error) {
	data, err := afero.ReadFile(b.Fs, path.Join("/", name))
	return string(data), err
}

// Calls returns the recorded requests
func (b *FakeBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallCount returns how many times op was requested
func (b *FakeBackend) CallCount(op string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// LastPayload decodes the most recent payload of op into v
func (b *FakeBackend) LastPayload(op string, v any) bool {
	calls := b.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Op == op {
			return json.Unmarshal(calls[i].Payload, v) == nil
		}
	}
	return false
}

// SetHistory replaces the stored history of a user
func (b *FakeBackend) SetHistory(userID string, history []HistoryMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.History[userID] = append([]HistoryMessage(nil), history...)
}

// Send handles one operation. It has the signature of the session transport.
func (b *FakeBackend) Send(ctx context.Context, op string, payload any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		raw = []byte("{}")
	}

	b.mu.Lock()
	b.calls = append(b.calls, Call{Op: op, Payload: raw})
	if n := b.failures[op]; n > 0 {
		b.failures[op] = n - 1
		b.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, ErrInjected)
	}
	b.mu.Unlock()

	var result any
	switch op {
	case "generate":
		result, err = b.generate(raw)
	case "clear_history":
		result, err = b.clearHistory(raw)
	case "sync_history":
		result, err = b.syncHistory(raw)
	case "get_providers":
		return b.providers(), nil
	case "file_list":
		result, err = b.fileList(raw)
	case "file_read":
		result, err = b.fileRead(raw)
	case "file_save":
		result, err = b.fileSave(raw)
	case "get_config":
		result = map[string]any{"allowed_files": b.AllowedFiles}
	default:
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func (b *FakeBackend) generate(raw json.RawMessage) (any, error) {
	var req GenerateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}

	gen := b.Generate
	if gen == nil {
		gen = func(req GenerateRequest) (GenerateReply, error) {
			return GenerateReply{Text: "echo: " + req.Prompt, Provider: b.providerName(req.ProviderID)}, nil
		}
	}
	reply, err := gen(req)
	if err != nil {
		return nil, err
	}

	if req.UserID != "" {
		attachments := map[string]string{}
		for _, a := range req.Attachments {
			attachments[a["filename"]] = a["content"]
		}
		b.mu.Lock()
		b.History[req.UserID] = append(b.History[req.UserID],
			HistoryMessage{Role: "user", Content: UserEnvelope(req.Prompt, req.FilePath, req.IncludeEntities, attachments), Timestamp: b.Now()},
			HistoryMessage{Role: "assistant", Content: AssistantEnvelope(reply.Text, reply.Code, reply.Provider), Timestamp: b.Now()},
		)
		b.mu.Unlock()
	}

	return map[string]string{
		"response_text": reply.Text,
		"response_code": reply.Code,
		"provider_name": reply.Provider,
	}, nil
}

func (b *FakeBackend) providerName(id string) string {
	for _, p := range b.Providers {
		if p.ID == id {
			return p.Name
		}
	}
	return id
}

func (b *FakeBackend) clearHistory(raw json.RawMessage) (any, error) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	b.mu.Lock()
	delete(b.History, req.UserID)
	b.mu.Unlock()
	return map[string]bool{"success": true}, nil
}

func (b *FakeBackend) syncHistory(raw json.RawMessage) (any, error) {
	var req struct {
		Limit  int    `json:"limit"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}

	b.mu.Lock()
	history := b.History[req.UserID]
	b.mu.Unlock()
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[len(history)-req.Limit:]
	}
	if history == nil {
		history = []HistoryMessage{}
	}
	return map[string]any{"messages": history}, nil
}

// providers encodes the provider map by hand to keep its order
func (b *FakeBackend) providers() json.RawMessage {
	var buf bytes.Buffer
	buf.WriteString(`{"providers":{`)
	for i, p := range b.Providers {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(p.ID)
		v, _ := json.Marshal(p.Name)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	def, _ := json.Marshal(b.DefaultProvider)
	buf.WriteString(`},"default_provider":`)
	buf.Write(def)
	buf.WriteByte('}')
	return buf.Bytes()
}

type fileItem struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

func (b *FakeBackend) fileList(raw json.RawMessage) (any, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	rel := strings.Trim(req.Path, "/")

	entries, err := afero.ReadDir(b.Fs, path.Join("/", rel))
	if err != nil {
		return nil, fmt.Errorf("cannot list %q: %w", req.Path, err)
	}

	items := []fileItem{}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || b.excluded(name) {
			continue
		}
		if !e.IsDir() {
			if _, ok := b.AllowedFiles[strings.ToLower(path.Ext(name))]; !ok {
				continue
			}
		}
		item := fileItem{Name: name, Path: path.Join(rel, name), IsDir: e.IsDir()}
		if !e.IsDir() {
			item.Size = e.Size()
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return map[string]any{"items": items}, nil
}

func (b *FakeBackend) excluded(name string) bool {
	for _, x := range b.ExcludedFiles {
		if x == name {
			return true
		}
	}
	return false
}

func (b *FakeBackend) fileRead(raw json.RawMessage) (any, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	content, err := b.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %q: %w", req.Path, err)
	}
	return map[string]string{"content": content}, nil
}

func (b *FakeBackend) fileSave(raw json.RawMessage) (any, error) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, errors.New("path is required")
	}
	b.WriteFile(req.Path, req.Content)
	return map[string]bool{"success": true}, nil
}
