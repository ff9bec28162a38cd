package internal

import (
	"fmt"
	"path"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
)

// MessageMarkdown renders a transcript message as Markdown
func MessageMarkdown(msg TranscriptMessage) string {
	var b strings.Builder

	who := "You"
	if msg.Role == RoleAssistant {
		who = "Assistant"
		if msg.ProviderName != "" {
			who = fmt.Sprintf("Assistant (%s)", msg.ProviderName)
		}
	}
	fmt.Fprintf(&b, "**%s**", who)
	if !msg.Timestamp.IsZero() {
		fmt.Fprintf(&b, " · _%s_", humanize.Time(msg.Timestamp))
	}
	b.WriteString("\n\n")

	if msg.Content != "" {
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	if msg.FilePath != "" {
		fmt.Fprintf(&b, "File: `%s`\n\n", msg.FilePath)
	}
	for _, att := range msg.Attachments {
		size := att.ContentLength
		if att.HasContent() {
			size = len(att.Content)
		}
		fmt.Fprintf(&b, "- 📎 %s (%s)\n", att.Filename, humanize.Bytes(uint64(size)))
	}
	if len(msg.Attachments) > 0 {
		b.WriteString("\n")
	}
	if len(msg.IncludedEntities) > 0 {
		fmt.Fprintf(&b, "Entities: %s\n\n", strings.Join(msg.IncludedEntities, ", "))
	}
	if msg.Code != "" {
		fmt.Fprintf(&b, "```%s\n%s\n```\n", codeLanguage(msg.FilePath), strings.TrimRight(msg.Code, "\n"))
	}
	return b.String()
}

// RenderMarkdown renders Markdown for the terminal, falling back to the
// source text when rendering is not possible
func RenderMarkdown(markdown string, width int) string {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		LogDebug("Markdown renderer unavailable: %v", err)
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		LogDebug("Markdown rendering failed: %v", err)
		return markdown
	}
	return out
}

// codeLanguage guesses a fence language from a file name
func codeLanguage(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".py":
		return "python"
	case ".yaml", ".yml":
		return "yaml"
	case ".js":
		return "javascript"
	case ".json":
		return "json"
	case ".sh":
		return "bash"
	case ".md":
		return "markdown"
	default:
		return ""
	}
}
