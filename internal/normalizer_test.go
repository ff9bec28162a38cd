package internal

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		input string
		want  Role
	}{
		{"user", RoleUser},
		{"assistant", RoleAssistant},
		{"Assistant", RoleAssistant},
		{" ai ", RoleAssistant},
		{"bot", RoleAssistant},
		{"model", RoleAssistant},
		{"system", RoleUser},
		{"", RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := normalizeRole(tt.input); got != tt.want {
				t.Errorf("normalizeRole(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewMessageID(t *testing.T) {
	a, b := newMessageID(), newMessageID()
	if a == b {
		t.Fatalf("newMessageID() returned %q twice", a)
	}
	id, err := uuid.Parse(a)
	if err != nil {
		t.Fatalf("newMessageID() = %q, not a UUID: %v", a, err)
	}
	if id.Version() != 7 {
		t.Errorf("newMessageID() version = %d, want 7", id.Version())
	}
}

func TestNewUserMessage(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	msg := newUserMessage(now, "fix it", []Attachment{{Filename: "a.py"}}, []string{"light.x"}, "code", "a.py")

	if msg.Role != RoleUser || msg.Content != "fix it" {
		t.Errorf("newUserMessage() = %+v, want a user message with the prompt", msg)
	}
	if msg.FilePath != "a.py" || msg.Code != "code" {
		t.Errorf("newUserMessage() file context = %q/%q, want a.py/code", msg.FilePath, msg.Code)
	}
	if !msg.Timestamp.Equal(now) {
		t.Errorf("newUserMessage() timestamp = %v, want %v", msg.Timestamp, now)
	}
	if msg.ID == "" {
		t.Error("newUserMessage() ID is empty")
	}
}

func TestNewAssistantMessage(t *testing.T) {
	msg := newAssistantMessage(time.Now(), "done", "print(1)", "OpenAI")
	if msg.Role != RoleAssistant || msg.ProviderName != "OpenAI" || msg.Code != "print(1)" {
		t.Errorf("newAssistantMessage() = %+v", msg)
	}
}
