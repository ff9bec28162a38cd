package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// messageNamespace seeds the name-based IDs of reconciled messages
var messageNamespace = uuid.MustParse("5b0c4f7e-3c1a-4e55-9a57-2d7f1c0e8a41")

// Envelope is the structured content stored by the backend for each history entry
type Envelope struct {
	ResponseText    string
	ResponseCode    string
	ProviderName    string
	Attachments     []Attachment
	IncludeEntities []string
	FilePath        string
}

// ParseEnvelope decodes content as an envelope. Only a JSON object is
// accepted; anything else returns a *ParseError and an envelope whose text
// is the raw content. Fields are decoded one by one: a field of the wrong
// type keeps its default and the others are still read.
func ParseEnvelope(content string) (Envelope, error) {
	fallback := Envelope{ResponseText: content}

	trimmed := bytes.TrimSpace([]byte(content))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fallback, &ParseError{Source: "envelope", Key: "content", Err: fmt.Errorf("not a JSON object")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fallback, &ParseError{Source: "envelope", Key: "content", Err: err}
	}

	env := Envelope{ResponseText: content}
	var text, code, provider, filePath *string
	decodeEnvelopeField(fields, "response_text", &text)
	decodeEnvelopeField(fields, "response_code", &code)
	decodeEnvelopeField(fields, "provider_name", &provider)
	decodeEnvelopeField(fields, "file_path", &filePath)
	decodeEnvelopeField(fields, "attachments", &env.Attachments)
	decodeEnvelopeField(fields, "include_entities", &env.IncludeEntities)

	if text != nil {
		env.ResponseText = *text
	}
	if code != nil {
		env.ResponseCode = *code
	}
	if provider != nil {
		env.ProviderName = *provider
	}
	if filePath != nil {
		env.FilePath = *filePath
	}
	return env, nil
}

// decodeEnvelopeField decodes one field into dst, leaving dst at its zero
// value when the field is absent or malformed
func decodeEnvelopeField[T any](fields map[string]json.RawMessage, key string, dst *T) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		LogDebug("Envelope field %s ignored: %v", key, err)
		return
	}
	*dst = v
}

// Reconciler rebuilds a transcript from backend history
type Reconciler struct{}

// NewReconciler creates a new Reconciler
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile maps raw history to transcript messages in chronological order.
// The result is a function of its input only.
func (r *Reconciler) Reconcile(raw []RawHistoryMessage) []TranscriptMessage {
	messages := make([]TranscriptMessage, 0, len(raw))
	for _, rm := range raw {
		messages = append(messages, r.reconcileMessage(rm))
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	return messages
}

func (r *Reconciler) reconcileMessage(rm RawHistoryMessage) TranscriptMessage {
	role := normalizeRole(rm.Role)
	env, err := ParseEnvelope(rm.Content)
	if err != nil {
		LogDebug("History entry is plain text: %v", err)
	}

	msg := TranscriptMessage{
		ID:               historyMessageID(role, rm),
		Role:             role,
		Content:          env.ResponseText,
		Code:             env.ResponseCode,
		Attachments:      env.Attachments,
		IncludedEntities: env.IncludeEntities,
		Timestamp:        secondsToTime(rm.Timestamp),
	}
	if role == RoleAssistant {
		msg.ProviderName = env.ProviderName
	} else {
		msg.FilePath = env.FilePath
	}
	return msg
}

// PromoteCode returns the code of the newest assistant message that has any
func PromoteCode(transcript []TranscriptMessage) (string, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		msg := transcript[i]
		if msg.Role == RoleAssistant && msg.Code != "" {
			return msg.Code, true
		}
	}
	return "", false
}

// secondsToTime converts fractional epoch seconds to a millisecond-precision instant
func secondsToTime(seconds float64) time.Time {
	return time.UnixMilli(int64(math.Round(seconds * 1000)))
}

func historyMessageID(role Role, rm RawHistoryMessage) string {
	name := fmt.Sprintf("%s|%d|%s", role, int64(math.Round(rm.Timestamp*1000)), rm.Content)
	return uuid.NewSHA1(messageNamespace, []byte(name)).String()
}
