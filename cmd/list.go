package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/iksnae/codetask-session/internal"
	"github.com/spf13/cobra"
)

var (
	listDelete string
	listYes    bool
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	fileStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

// listCmd lists the cached sessions
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached sessions",
	Long: `List the sessions in the local cache, one per user identity.
Use --delete to drop the cached session of a user.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if cmd.Flags().Changed("delete") {
			key := internal.CacheKey(listDelete)
			if !listYes {
				req := internal.ConfirmationRequest{
					Title:        "Delete cached session",
					Body:         fmt.Sprintf("The cached conversation of %s will be removed.", displayUser(listDelete)),
					ConfirmLabel: "Delete",
				}
				ok, err := askConfirmation(cmd.InOrStdin(), cmd.ErrOrStderr(), req)
				if err != nil || !ok {
					return err
				}
			}
			if err := a.session.Cache.Delete(ctx, key); err != nil {
				return err
			}
			internal.LogInfo("Deleted %s", key)
			return nil
		}

		entries, err := a.session.Cache.List(ctx)
		if err != nil {
			return err
		}
		displayEntries(cmd.OutOrStdout(), entries)
		return nil
	},
}

func displayUser(id string) string {
	if id == "" {
		return "default"
	}
	return id
}

func displayEntries(out io.Writer, entries []internal.CacheEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No cached sessions"))
		return
	}

	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(entries))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, titleStyle.Render("User")+"\t"+titleStyle.Render("Messages")+"\t"+titleStyle.Render("Provider")+"\t"+titleStyle.Render("File")+"\t"+titleStyle.Render("Last message")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 90))

	for _, entry := range entries {
		user := idStyle.Render(displayUser(internal.UserIDFromKey(entry.Key)))
		count := countStyle.Render(strconv.Itoa(entry.MessageCount))

		provider := dateStyle.Render("-")
		if entry.SelectedProvider != "" {
			provider = entry.SelectedProvider
		}

		file := dateStyle.Render("-")
		if entry.ActiveFilePath != "" {
			file = entry.ActiveFilePath
			if len(file) > 30 {
				file = "..." + file[len(file)-27:]
			}
			file = fileStyle.Render(file)
		}

		last := dateStyle.Render("-")
		if !entry.LastMessageAt.IsZero() {
			last = dateStyle.Render(humanize.Time(entry.LastMessageAt))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", user, count, provider, file, last)
	}
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listDelete, "delete", "", "Delete the cached session of a user (empty for the default user)")
	listCmd.Flags().BoolVarP(&listYes, "yes", "y", false, "Do not ask for confirmation")
}
