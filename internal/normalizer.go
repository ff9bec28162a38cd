package internal

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// normalizeRole maps backend role names onto transcript roles.
// Anything that is not an assistant role is treated as the user.
func normalizeRole(role string) Role {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "assistant", "ai", "bot", "model":
		return RoleAssistant
	default:
		return RoleUser
	}
}

// newMessageID returns a time-ordered ID for a locally created message
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// newUserMessage builds the optimistic user entry appended by SubmitPrompt
func newUserMessage(now time.Time, prompt string, attachments []Attachment, entities []string, code, filePath string) TranscriptMessage {
	return TranscriptMessage{
		ID:               newMessageID(),
		Role:             RoleUser,
		Content:          prompt,
		Code:             code,
		Attachments:      attachments,
		IncludedEntities: entities,
		FilePath:         filePath,
		Timestamp:        now,
	}
}

// newAssistantMessage builds an assistant entry
func newAssistantMessage(now time.Time, text, code, provider string) TranscriptMessage {
	return TranscriptMessage{
		ID:           newMessageID(),
		Role:         RoleAssistant,
		Content:      text,
		Code:         code,
		ProviderName: provider,
		Timestamp:    now,
	}
}
