package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/iksnae/codetask-session/internal"
	"github.com/iksnae/codetask-session/internal/transport"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	configPath   string
	serverURL    string
	token        string
	userID       string
	cacheBackend string
	cachePath    string
	version      string = "dev"
	commit       string = "unknown"
	date         string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "codetask",
	Short: "Terminal client for the AI code task assistant",
	Long: `A terminal client for an AI code task assistant running on a Home Assistant
style websocket backend.

The conversation, the code buffer and the open remote file are kept in a local
session cache, so every command picks up where the previous one left off.

Quick Start:
  codetask chat "write a script that turns off all lights"
  codetask ls scripts                      # Browse remote files
  codetask open scripts/lights.py          # Load a file into the code buffer
  codetask sync                            # Replace the transcript with server history
  codetask show                            # Render the cached conversation

Connection settings come from the config file, CODETASK_SERVER / CODETASK_TOKEN /
CODETASK_USER, or the flags below.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <config dir>/codetask/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Websocket endpoint of the backend")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Access token")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User identity the session belongs to")
	rootCmd.PersistentFlags().StringVar(&cacheBackend, "cache-backend", "", "Session cache backend (sqlite, file, memory)")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache-path", "", "Session cache location (database file or directory)")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig merges defaults, the config file, the environment and the flags
func loadConfig() (*internal.Config, internal.AppPaths, error) {
	paths, err := internal.DetectPaths()
	if err != nil {
		return nil, paths, err
	}

	path := configPath
	if path == "" {
		path = paths.ConfigFile()
	}
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return nil, paths, err
	}
	cfg.ApplyEnv()
	cfg.Merge(&internal.Config{
		Server: serverURL,
		Token:  token,
		UserID: userID,
		Cache: internal.CacheConfig{
			Backend: cacheBackend,
			Path:    cachePath,
		},
	})
	return cfg, paths, nil
}

// app is one opened session with the resources backing it
type app struct {
	cfg       *internal.Config
	session   *internal.Session
	transport *transport.WebSocket
	store     internal.Store
	unsub     func()
}

// openSession restores the cached session. Online sessions also validate the
// connection settings and load the backend config and providers.
func openSession(cmd *cobra.Command, online bool) (*app, error) {
	cfg, paths, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if online {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	store, err := internal.OpenStore(cfg.Cache, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to open session cache: %w", err)
	}

	ws := transport.New(transport.Options{URL: cfg.Server, Token: cfg.Token, Domain: cfg.Domain})
	session := internal.NewSession(ws, store, internal.OptionsFromConfig(cfg))

	errOut := cmd.ErrOrStderr()
	unsub := session.Bus.Subscribe(internal.EventNoticeShown, func(e internal.Event) {
		if n, ok := e.Payload.(internal.Notice); ok {
			fmt.Fprintln(errOut, internal.FormatNotice(n, internal.IsTerminal(errOut)))
		}
	})

	a := &app{cfg: cfg, session: session, transport: ws, store: store, unsub: unsub}
	if online {
		session.Start(cmd.Context())
	} else {
		session.Store.Restore(cmd.Context())
	}
	return a, nil
}

// Close flushes pending edits and releases the connection and the cache
func (a *app) Close() {
	a.session.Close()
	a.unsub()
	if err := a.transport.Close(); err != nil {
		internal.LogDebug("Failed to close connection: %v", err)
	}
	if err := a.store.Close(); err != nil {
		internal.LogWarn("Failed to close session cache: %v", err)
	}
}

// resolveConfirmation answers the pending confirmation, prompting on the
// command's input unless assumeYes is set
func resolveConfirmation(cmd *cobra.Command, gate *internal.ConfirmationGate, assumeYes bool) error {
	req, ok := gate.Pending()
	if !ok {
		return nil
	}

	if !assumeYes {
		accepted, err := askConfirmation(cmd.InOrStdin(), cmd.ErrOrStderr(), req)
		if err != nil {
			gate.Cancel()
			return err
		}
		if !accepted {
			gate.Cancel()
			fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
			return nil
		}
	}
	return gate.Accept(cmd.Context())
}

func askConfirmation(in io.Reader, out io.Writer, req internal.ConfirmationRequest) (bool, error) {
	fmt.Fprintf(out, "%s\n%s\n%s? [y/N] ", req.Title, req.Body, req.ConfirmLabel)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
