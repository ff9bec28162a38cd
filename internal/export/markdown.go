package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/codetask-session/internal"
)

// MarkdownExporter exports transcripts in Markdown format
type MarkdownExporter struct{}

// Export exports a transcript to Markdown format
func (e *MarkdownExporter) Export(transcript *internal.Transcript, w io.Writer) error {
	// Header
	if transcript.UserID != "" {
		_, _ = fmt.Fprintf(w, "# Conversation %s\n\n", transcript.UserID)
	} else {
		_, _ = fmt.Fprintf(w, "# Conversation\n\n")
	}

	if transcript.Provider != "" {
		_, _ = fmt.Fprintf(w, "**Provider:** %s  \n", transcript.Provider)
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(transcript.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")

	for i, msg := range transcript.Messages {
		timestamp := ""
		if !msg.Timestamp.IsZero() {
			timestamp = fmt.Sprintf(" (%s)", msg.Timestamp.UTC().Format(time.RFC3339))
		}

		actor := string(msg.Role)
		if msg.ProviderName != "" {
			actor = fmt.Sprintf("%s · %s", actor, msg.ProviderName)
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", actor, timestamp, escapeMarkdown(msg.Content))

		if msg.FilePath != "" {
			_, _ = fmt.Fprintf(w, "_File:_ `%s`\n\n", msg.FilePath)
		}
		for _, att := range msg.Attachments {
			_, _ = fmt.Fprintf(w, "- attachment: %s\n", att.Filename)
		}
		if len(msg.Attachments) > 0 {
			_, _ = fmt.Fprintf(w, "\n")
		}
		if msg.Code != "" {
			_, _ = fmt.Fprintf(w, "```\n%s\n```\n\n", strings.TrimRight(msg.Code, "\n"))
		}

		// Add horizontal rule after each message (except the last one)
		if i < len(transcript.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			// Escape markdown syntax outside code blocks
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
