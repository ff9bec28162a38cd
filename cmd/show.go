package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/codetask-session/internal"
	"github.com/spf13/cobra"
)

var (
	limit   int
	since   string
	showRaw bool
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached conversation",
	Long: `Display the conversation of the current user from the local session cache.
Messages are numbered; use the numbers with 'codetask code load'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		st := a.session.Store.State()
		out := cmd.OutOrStdout()
		displaySessionHeader(out, a.session.Store.UserID(), st, a.session.Workspace.Mode())

		type numbered struct {
			n   int
			msg internal.TranscriptMessage
		}
		var messages []numbered
		var sinceTime time.Time
		if since != "" {
			sinceTime, err = time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since timestamp format (expected RFC3339): %w", err)
			}
		}
		for i, msg := range st.Transcript {
			if !sinceTime.IsZero() && msg.Timestamp.Before(sinceTime) {
				continue
			}
			messages = append(messages, numbered{n: i + 1, msg: msg})
		}

		if len(messages) == 0 {
			fmt.Fprintln(out, timestampStyle.Render("(no messages)"))
			return nil
		}

		skipped := 0
		if limit > 0 && limit < len(messages) {
			skipped = len(messages) - limit
			messages = messages[skipped:]
			fmt.Fprintln(out, timestampStyle.Render(fmt.Sprintf("... (%d earlier message(s))", skipped)))
			fmt.Fprintln(out)
		}

		for _, m := range messages {
			displayMessage(out, m.n, len(st.Transcript), m.msg)
		}
		return nil
	},
}

func displaySessionHeader(w io.Writer, user string, st internal.SessionState, mode internal.WorkspaceMode) {
	if user == "" {
		user = "default"
	}
	fmt.Fprintln(w, sessionHeaderStyle.Render(fmt.Sprintf("💬 Conversation of %s", user)))

	metaParts := []string{fmt.Sprintf("Messages: %d", len(st.Transcript))}
	if st.SelectedProvider != "" {
		metaParts = append(metaParts, fmt.Sprintf("Provider: %s", st.SelectedProvider))
	}
	if st.ActiveFilePath != "" {
		metaParts = append(metaParts, fmt.Sprintf("File: %s (%s)", st.ActiveFilePath, mode))
	}
	fmt.Fprintln(w, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	fmt.Fprintln(w)
}

func displayMessage(w io.Writer, index, total int, msg internal.TranscriptMessage) {
	actorStyle, actorLabel := userMessageStyle, "👤 You"
	if msg.Role == internal.RoleAssistant {
		actorStyle, actorLabel = assistantMessageStyle, "🤖 Assistant"
	}

	header := actorStyle.Render(actorLabel) + " " + timestampStyle.Render(fmt.Sprintf("[%d/%d]", index, total))
	if !msg.Timestamp.IsZero() {
		header += " " + timestampStyle.Render(msg.Timestamp.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w, header)
	printMessage(w, msg, showRaw)
	fmt.Fprintln(w)
}

// printMessage writes a message as rendered Markdown, or as source when raw is set
func printMessage(w io.Writer, msg internal.TranscriptMessage, raw bool) {
	md := internal.MessageMarkdown(msg)
	if raw {
		fmt.Fprint(w, md)
		return
	}
	fmt.Fprint(w, internal.RenderMarkdown(md, 0))
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show only the last N messages")
	showCmd.Flags().StringVar(&since, "since", "", "Show messages since timestamp (RFC3339)")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print messages as Markdown source")
}
