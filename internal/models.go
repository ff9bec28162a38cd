package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Role identifies the author of a transcript message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment is a file attached to a prompt or returned in synced history.
// ContentLength is set instead of Content when the content was elided for storage.
type Attachment struct {
	Filename      string `json:"filename" yaml:"filename"`
	Content       string `json:"content,omitempty" yaml:"content,omitempty"`
	ContentType   string `json:"contentType,omitempty" yaml:"content_type,omitempty"`
	ContentLength int    `json:"contentLength,omitempty" yaml:"content_length,omitempty"`
}

// HasContent reports whether the attachment still carries its content
func (a Attachment) HasContent() bool {
	return a.Content != ""
}

// TranscriptMessage is a single entry of the conversation transcript
type TranscriptMessage struct {
	ID               string       `json:"id,omitempty" yaml:"id,omitempty"`
	Role             Role         `json:"role" yaml:"role"`
	Content          string       `json:"content" yaml:"content"`
	Code             string       `json:"code,omitempty" yaml:"code,omitempty"`
	ProviderName     string       `json:"providerName,omitempty" yaml:"provider_name,omitempty"`
	Attachments      []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
	IncludedEntities []string     `json:"include_entities,omitempty" yaml:"include_entities,omitempty"`
	FilePath         string       `json:"filepath,omitempty" yaml:"filepath,omitempty"`
	Timestamp        time.Time    `json:"timestamp" yaml:"timestamp"`
}

// SessionState is the authoritative in-memory state of one user session
type SessionState struct {
	Transcript         []TranscriptMessage
	CurrentCode        string
	ActiveFilePath     string
	IsCodeModified     bool
	SelectedProvider   string
	SelectedEntities   []string
	PendingAttachments []Attachment
	SendOnEnter        bool
}

// Clone returns a deep copy of the state
func (s SessionState) Clone() SessionState {
	out := s
	out.Transcript = cloneTranscript(s.Transcript)
	out.SelectedEntities = cloneStrings(s.SelectedEntities)
	out.PendingAttachments = cloneAttachments(s.PendingAttachments)
	return out
}

// DefaultSessionState returns the state used when nothing is cached
func DefaultSessionState() SessionState {
	return SessionState{
		Transcript:       []TranscriptMessage{},
		SelectedEntities: []string{},
	}
}

// ExplorerItem is one entry of a remote directory listing
type ExplorerItem struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// ExplorerState is the transient state of the remote file browser
type ExplorerState struct {
	Open        bool
	CurrentPath string
	Items       []ExplorerItem
	Loading     bool
}

// RawHistoryMessage is a history entry as returned by sync_history.
// Timestamp is in seconds since the epoch.
type RawHistoryMessage struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// Provider is one AI provider offered by the backend
type Provider struct {
	ID   string
	Name string
}

// ProviderSet is the ordered set of providers returned by get_providers.
// The order follows the key order of the backend's JSON object.
type ProviderSet []Provider

// Contains reports whether id is a known provider
func (p ProviderSet) Contains(id string) bool {
	if id == "" {
		return false
	}
	for _, provider := range p {
		if provider.ID == id {
			return true
		}
	}
	return false
}

// UnmarshalJSON decodes a JSON object while keeping its key order
func (p *ProviderSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("providers: expected object, got %v", tok)
	}

	var out ProviderSet
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		name := key
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			name = s
		}
		out = append(out, Provider{ID: key, Name: name})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

// Transcript is an exportable view of one user's conversation
type Transcript struct {
	UserID   string              `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Provider string              `json:"provider,omitempty" yaml:"provider,omitempty"`
	Messages []TranscriptMessage `json:"messages" yaml:"messages"`
}

func cloneTranscript(in []TranscriptMessage) []TranscriptMessage {
	if in == nil {
		return nil
	}
	out := make([]TranscriptMessage, len(in))
	for i, msg := range in {
		msg.Attachments = cloneAttachments(msg.Attachments)
		msg.IncludedEntities = cloneStrings(msg.IncludedEntities)
		out[i] = msg
	}
	return out
}

func cloneAttachments(in []Attachment) []Attachment {
	if in == nil {
		return nil
	}
	out := make([]Attachment, len(in))
	copy(out, in)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
