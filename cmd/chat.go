package cmd

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/iksnae/codetask-session/internal"
	"github.com/spf13/cobra"
)

var (
	chatAttachments []string
	chatEntities    []string
	chatProvider    string
	chatRaw         bool
	syncYes         bool
	clearYes        bool
)

// chatCmd sends a prompt to the assistant
var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a prompt to the assistant",
	Long: `Send a prompt to the assistant and print its reply.

The code buffer and the open file are sent along when the buffer was edited or
loaded from a file. Code in the reply replaces the buffer.
When no prompt is given it is read from stdin.

Examples:
  codetask chat "turn the kitchen lights on at sunset"
  codetask chat --entity light.kitchen "why is this light unavailable?"
  codetask chat --attach automations.yaml "add a motion trigger"
  echo "explain this code" | codetask chat`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		if prompt == "" && len(chatAttachments) == 0 {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read prompt: %w", err)
			}
			prompt = strings.TrimSpace(string(data))
		}

		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		store := a.session.Store

		if chatProvider != "" {
			if !store.Providers().Contains(chatProvider) {
				return fmt.Errorf("unknown provider: %s (see 'codetask providers')", chatProvider)
			}
			store.SelectProvider(ctx, chatProvider)
		}
		for _, p := range chatAttachments {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read attachment: %w", err)
			}
			name := filepath.Base(p)
			if err := store.AddAttachment(name, data, mime.TypeByExtension(filepath.Ext(name))); err != nil {
				return err
			}
		}
		for _, id := range chatEntities {
			store.AddEntity(ctx, id)
		}

		before := len(store.State().Transcript)
		err = internal.ShowProgress(ctx, "Waiting for the assistant", func() error {
			return store.SubmitPrompt(ctx, prompt)
		})
		if err != nil {
			return err
		}

		transcript := store.State().Transcript
		if len(transcript) == before {
			return fmt.Errorf("nothing to send: the prompt is empty and no files are attached")
		}
		reply := transcript[len(transcript)-1]
		printMessage(cmd.OutOrStdout(), reply, chatRaw)
		return nil
	},
}

// syncCmd replaces the local transcript with the server history
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the local transcript with the server history",
	Long: `Fetch the most recent messages stored by the backend and replace the local
transcript with them. Code from the latest assistant reply is loaded into the
code buffer.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Store.SyncHistory(); err != nil {
			return err
		}
		return resolveConfirmation(cmd, a.session.Gate, syncYes)
	},
}

// clearCmd clears the conversation
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the conversation",
	Long: `Clear the conversation on the backend and locally. The code buffer and
pending attachments are cleared as well. When the backend cannot be reached the
local state is still cleared.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Store.ClearChat(); err != nil {
			return err
		}
		err = resolveConfirmation(cmd, a.session.Gate, clearYes)
		var partial *internal.PartialFailureError
		if errors.As(err, &partial) {
			internal.LogDebug("Backend memory not cleared: %v", partial.Err)
			return nil
		}
		return err
	},
}

// providersCmd lists the available providers
var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the AI providers offered by the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		providers := a.session.Store.Providers()
		if len(providers) == 0 {
			return fmt.Errorf("no providers available")
		}
		selected := a.session.Store.State().SelectedProvider
		out := cmd.OutOrStdout()
		for _, p := range providers {
			marker := " "
			if p.ID == selected {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\t%s\n", marker, p.ID, p.Name)
		}
		return nil
	},
}

var providersUseCmd = &cobra.Command{
	Use:   "use <provider-id>",
	Short: "Select the provider used for the next prompts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		id := args[0]
		store := a.session.Store
		if !store.Providers().Contains(id) {
			return fmt.Errorf("unknown provider: %s", id)
		}
		store.SelectProvider(cmd.Context(), id)
		fmt.Fprintf(cmd.OutOrStdout(), "Using %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd, syncCmd, clearCmd, providersCmd)
	providersCmd.AddCommand(providersUseCmd)

	chatCmd.Flags().StringSliceVarP(&chatAttachments, "attach", "a", nil, "Attach a local file (repeatable)")
	chatCmd.Flags().StringSliceVarP(&chatEntities, "entity", "e", nil, "Include an entity in the prompt (repeatable)")
	chatCmd.Flags().StringVarP(&chatProvider, "provider", "p", "", "Provider for this and later prompts")
	chatCmd.Flags().BoolVar(&chatRaw, "raw", false, "Print the reply as Markdown source")
	syncCmd.Flags().BoolVarP(&syncYes, "yes", "y", false, "Do not ask for confirmation")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")
}
