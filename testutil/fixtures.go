package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HistoryMessage is a history entry as stored by the fake backend
type HistoryMessage struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// UserEnvelope builds the stored content of a user prompt
func UserEnvelope(prompt, filePath string, entities []string, attachments map[string]string) string {
	env := map[string]any{
		"response_text":    prompt,
		"include_entities": entities,
		"file_path":        nil,
	}
	if filePath != "" {
		env["file_path"] = filePath
	}
	if len(attachments) > 0 {
		var list []map[string]string
		for name, content := range attachments {
			list = append(list, map[string]string{"filename": name, "content": content})
		}
		env["attachments"] = list
	}
	data, _ := json.Marshal(env)
	return string(data)
}

// AssistantEnvelope builds the stored content of an assistant reply
func AssistantEnvelope(text, code, provider string) string {
	data, _ := json.Marshal(map[string]any{
		"response_text": text,
		"response_code": code,
		"provider_name": provider,
	})
	return string(data)
}

// Conversation returns n alternating user/assistant history entries one second apart
func Conversation(n int, start float64) []HistoryMessage {
	history := make([]HistoryMessage, 0, n)
	for i := 0; i < n; i++ {
		ts := start + float64(i)
		if i%2 == 0 {
			history = append(history, HistoryMessage{
				Role:      "user",
				Content:   UserEnvelope(fmt.Sprintf("question %d", i/2), "", nil, nil),
				Timestamp: ts,
			})
			continue
		}
		history = append(history, HistoryMessage{
			Role:      "assistant",
			Content:   AssistantEnvelope(fmt.Sprintf("answer %d", i/2), "", "OpenAI"),
			Timestamp: ts,
		})
	}
	return history
}

// Text returns a string of n bytes
func Text(n int) string {
	return strings.Repeat("x", n)
}

// DefaultAllowedFiles mirrors the attachment types the backend accepts
func DefaultAllowedFiles() map[string][]string {
	return map[string][]string{
		".py":   {"text/x-python"},
		".yaml": {"text/yaml", "application/x-yaml"},
		".yml":  {"text/yaml", "application/x-yaml"},
		".json": {"application/json"},
		".txt":  {"text/plain"},
		".md":   {"text/markdown"},
		".js":   {"text/javascript"},
		".sh":   {"text/x-shellscript"},
	}
}
