package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/codetask-session/internal"
	"github.com/iksnae/codetask-session/internal/transport"
	"github.com/spf13/cobra"
)

var (
	healthcheckDetails bool
	healthcheckTimeout time.Duration
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that codetask can reach its cache and the backend",
	Long: `Check the health of codetask by verifying:
  • Configuration (server and token)
  • Session cache access
  • Backend connection and authentication
  • Provider and attachment configuration

This command is useful for debugging connection issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 Codetask Health Check"))
		fmt.Fprintln(out)

		// Step 1: Configuration
		fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, paths, err := loadConfig()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to load configuration:"), err)
			return err
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Configuration incomplete:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if healthcheckDetails {
			fmt.Fprintf(out, "   Config file: %s\n", orDash(configPath))
			fmt.Fprintf(out, "   Server: %s\n", cfg.Server)
			fmt.Fprintf(out, "   User: %s\n", displayUser(cfg.UserID))
		}
		fmt.Fprintln(out)

		// Step 2: Session cache
		fmt.Fprintln(out, infoStyle.Render("Step 2: Opening session cache..."))
		store, err := internal.OpenStore(cfg.Cache, paths)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to open session cache:"), err)
			return err
		}
		defer store.Close()
		entries, err := internal.NewSessionCache(store, 0, 0).List(cmd.Context())
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to read session cache:"), err)
			return err
		}
		fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Session cache available (%d session(s))", len(entries))))
		if healthcheckDetails {
			fmt.Fprintf(out, "   Backend: %s\n", cfg.Cache.Backend)
			fmt.Fprintf(out, "   Location: %s\n", cacheLocation(cfg))
		}
		fmt.Fprintln(out)

		// Step 3: Backend connection
		fmt.Fprintln(out, infoStyle.Render("Step 3: Connecting to the backend..."))
		ctx, cancel := context.WithTimeout(cmd.Context(), healthcheckTimeout)
		defer cancel()
		ws, err := transport.Dial(ctx, transport.Options{URL: cfg.Server, Token: cfg.Token, Domain: cfg.Domain})
		if err != nil {
			var remote *internal.RemoteError
			if errors.As(err, &remote) && remote.Code == "auth_invalid" {
				fmt.Fprintln(out, errorStyle.Render("❌ Authentication failed:"), remote.Message)
			} else {
				fmt.Fprintln(out, errorStyle.Render("❌ Connection failed:"), err)
			}
			return fmt.Errorf("health check failed: %w", err)
		}
		defer ws.Close()
		fmt.Fprintln(out, successStyle.Render("✅ Connected and authenticated"))
		if healthcheckDetails {
			fmt.Fprintf(out, "   Server version: %s\n", ws.HAVersion())
		}
		fmt.Fprintln(out)

		// Step 4: Backend configuration
		fmt.Fprintln(out, infoStyle.Render("Step 4: Loading providers and file types..."))
		channel := internal.NewRemoteChannel(ws, nil, internal.WithRetry(1, 0))
		var providers internal.ProvidersResponse
		err = channel.Call(ctx, internal.OpGetProviders, nil, &providers)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to load providers:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		if len(providers.Providers) == 0 {
			fmt.Fprintln(out, warningStyle.Render("⚠️  No providers configured on the backend"))
		} else {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d provider(s)", len(providers.Providers))))
			if healthcheckDetails {
				printProviders(out, providers)
			}
		}

		var config internal.ConfigResponse
		if err := channel.Call(ctx, internal.OpGetConfig, nil, &config); err != nil {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Attachment types unavailable:"), err)
		} else {
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ %d attachment type(s) allowed", len(config.AllowedFiles))))
		}
		fmt.Fprintln(out)

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)
		if len(providers.Providers) == 0 {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Backend reachable but no providers are configured"))
			return nil
		}
		fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
		return nil
	},
}

func printProviders(out io.Writer, resp internal.ProvidersResponse) {
	for _, p := range resp.Providers {
		marker := " "
		if p.ID == resp.DefaultProvider {
			marker = "*"
		}
		fmt.Fprintf(out, "   %s %s (%s)\n", marker, p.Name, p.ID)
	}
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().BoolVarP(&healthcheckDetails, "details", "d", false, "Show detailed diagnostic information")
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 10*time.Second, "Time allowed for the backend checks")
}
