package internal

import (
	"strconv"
	"time"
)

// testEpoch is the fixed instant used by test transcripts
var testEpoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// CreateTestTranscript creates a transcript with one exchange
func CreateTestTranscript(userID string) *Transcript {
	return &Transcript{
		UserID:   userID,
		Provider: "openai",
		Messages: []TranscriptMessage{
			{
				ID:        "m1",
				Role:      RoleUser,
				Content:   "Write a hello world script",
				FilePath:  "scripts/hello.py",
				Timestamp: testEpoch,
			},
			{
				ID:           "m2",
				Role:         RoleAssistant,
				Content:      "Here you go.",
				Code:         "print('hello')",
				ProviderName: "OpenAI",
				Timestamp:    testEpoch.Add(time.Second),
			},
		},
	}
}

// CreateTestTranscriptWithMessages creates a transcript with custom messages
func CreateTestTranscriptWithMessages(userID string, messages []TranscriptMessage) *Transcript {
	return &Transcript{
		UserID:   userID,
		Messages: messages,
	}
}

// CreateTestMessages creates n alternating user/assistant messages one second apart
func CreateTestMessages(n int) []TranscriptMessage {
	messages := make([]TranscriptMessage, 0, n)
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		messages = append(messages, TranscriptMessage{
			ID:        newMessageID(),
			Role:      role,
			Content:   "message " + strconv.Itoa(i),
			Timestamp: testEpoch.Add(time.Duration(i) * time.Second),
		})
	}
	return messages
}
