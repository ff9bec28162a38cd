package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/iksnae/codetask-session/internal"
	"github.com/spf13/cobra"
)

var (
	closeYes      bool
	codeClearYes  bool
	codeLoadAttch string
)

// lsCmd lists a remote directory
var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a remote directory",
	Long: `List a directory of the backend's config folder. Only directories and file
types the backend allows are shown; hidden and excluded files are filtered out.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		explorer := a.session.Explorer
		if len(args) == 0 {
			err = explorer.Open(cmd.Context())
		} else {
			err = explorer.ListDirectory(cmd.Context(), args[0])
		}
		if err != nil {
			return err
		}

		st := explorer.State()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, item := range st.Items {
			if item.IsDir {
				fmt.Fprintf(w, "%s/\t\t%s\n", item.Name, item.Path)
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", item.Name, humanize.Bytes(uint64(item.Size)), item.Path)
		}
		return w.Flush()
	},
}

// openCmd loads a remote file into the code buffer
var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a remote file in the code buffer",
	Long: `Read a remote file into the code buffer and make it the active file. The
file's content is sent with the next prompt and 'codetask save' writes the
buffer back to it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.session.Explorer.Select(cmd.Context(), internal.ExplorerItem{Path: args[0]})
	},
}

// saveCmd writes the buffer back to the active file
var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the code buffer to the active remote file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.session.Workspace.SaveActiveFile(cmd.Context())
	},
}

// closeCmd closes the active file
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the active file",
	Long:  `Close the active file and empty the code buffer. Unsaved changes need confirmation.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.session.Workspace.ActiveFilePath() == "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "No file is open")
			return nil
		}
		if err := a.session.Workspace.CloseActiveFile(); err != nil {
			return err
		}
		return resolveConfirmation(cmd, a.session.Gate, closeYes)
	},
}

// codeCmd prints the code buffer
var codeCmd = &cobra.Command{
	Use:   "code",
	Short: "Print the code buffer",
	Long: `Print the code buffer. The subcommands edit, clear or fill it from the
conversation.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ws := a.session.Workspace
		if path := ws.ActiveFilePath(); path != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "# %s (%s)\n", path, ws.Mode())
		}
		fmt.Fprint(cmd.OutOrStdout(), ws.Buffer())
		return nil
	},
}

var codeEditCmd = &cobra.Command{
	Use:   "edit <file|->",
	Short: "Replace the code buffer with a local file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return fmt.Errorf("failed to read code: %w", err)
		}

		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.session.Workspace.EditBuffer(string(data)) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Code buffer unchanged")
			return nil
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Code buffer updated (%s)\n", humanize.Bytes(uint64(len(data))))
		return nil
	},
}

var codeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the code buffer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Workspace.ClearBuffer(); err != nil {
			return err
		}
		return resolveConfirmation(cmd, a.session.Gate, codeClearYes)
	},
}

var codeLoadCmd = &cobra.Command{
	Use:   "load <message-number>",
	Short: "Load code or an attachment from a transcript message",
	Long: `Load the code of a transcript message into the buffer. Messages are numbered
from 1 as shown by 'codetask show'. With --attachment the named
attachment of the message is loaded instead and becomes the active file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid message number: %s", args[0])
		}

		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		transcript := a.session.Store.State().Transcript
		if n < 1 || n > len(transcript) {
			return fmt.Errorf("message %d does not exist (transcript has %d messages)", n, len(transcript))
		}
		msg := transcript[n-1]
		ctx := cmd.Context()

		if codeLoadAttch == "" {
			if !a.session.Workspace.LoadCodeFromMessage(ctx, msg) {
				return fmt.Errorf("message %d has no code", n)
			}
			return nil
		}
		for _, att := range msg.Attachments {
			if att.Filename != codeLoadAttch {
				continue
			}
			if !a.session.Workspace.LoadAttachment(ctx, att) {
				return fmt.Errorf("attachment %s has no stored content", att.Filename)
			}
			return nil
		}
		return fmt.Errorf("message %d has no attachment named %s", n, codeLoadAttch)
	},
}

func init() {
	rootCmd.AddCommand(lsCmd, openCmd, saveCmd, closeCmd, codeCmd)
	codeCmd.AddCommand(codeEditCmd, codeClearCmd, codeLoadCmd)

	closeCmd.Flags().BoolVarP(&closeYes, "yes", "y", false, "Discard unsaved changes without asking")
	codeClearCmd.Flags().BoolVarP(&codeClearYes, "yes", "y", false, "Do not ask for confirmation")
	codeLoadCmd.Flags().StringVar(&codeLoadAttch, "attachment", "", "Load the named attachment instead of the code")
}
