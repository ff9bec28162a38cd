package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/iksnae/codetask-session/internal"
)

// JSONLExporter exports transcripts in JSONL format (one message per line)
type JSONLExporter struct{}

// Export exports a transcript to JSONL format
func (e *JSONLExporter) Export(transcript *internal.Transcript, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range transcript.Messages {
		obj := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}

		if !msg.Timestamp.IsZero() {
			obj["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339)
		}
		if msg.Code != "" {
			obj["code"] = msg.Code
		}
		if msg.ProviderName != "" {
			obj["provider"] = msg.ProviderName
		}
		if msg.FilePath != "" {
			obj["file_path"] = msg.FilePath
		}
		if len(msg.Attachments) > 0 {
			names := make([]string, 0, len(msg.Attachments))
			for _, att := range msg.Attachments {
				names = append(names, att.Filename)
			}
			obj["attachments"] = names
		}

		// Encode to single line
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
