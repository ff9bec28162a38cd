package cmd

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/iksnae/codetask-session/internal"
	"github.com/spf13/cobra"
)

var (
	statusRemote bool
	statusRecord bool
)

// statusCmd shows the state of the current session
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and cache state",
	Long: `Show the state of the current session: transcript size, selected provider,
the active file and its workspace mode, pending attachments and entities.

Examples:
  codetask status                 # Local state only
  codetask status --remote        # Also check the backend connection
  codetask status --records       # List the records of a sqlite cache`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		st := a.session.Store.State()

		fmt.Fprintf(out, "👤 User:        %s\n", displayUser(a.session.Store.UserID()))
		fmt.Fprintf(out, "🔌 Server:      %s\n", a.cfg.Server)
		fmt.Fprintf(out, "💾 Cache:       %s (%s)\n", a.cfg.Cache.Backend, cacheLocation(a.cfg))
		fmt.Fprintf(out, "💬 Messages:    %d\n", len(st.Transcript))
		fmt.Fprintf(out, "🤖 Provider:    %s\n", orDash(st.SelectedProvider))
		fmt.Fprintf(out, "📄 File:        %s (%s)\n", orDash(st.ActiveFilePath), a.session.Workspace.Mode())
		fmt.Fprintf(out, "📝 Code buffer: %s\n", humanize.Bytes(uint64(len(st.CurrentCode))))
		if len(st.PendingAttachments) > 0 {
			names := make([]string, 0, len(st.PendingAttachments))
			for _, att := range st.PendingAttachments {
				names = append(names, att.Filename)
			}
			fmt.Fprintf(out, "📎 Attachments: %s\n", strings.Join(names, ", "))
		}
		if len(st.SelectedEntities) > 0 {
			fmt.Fprintf(out, "🏠 Entities:    %s\n", strings.Join(st.SelectedEntities, ", "))
		}
		fmt.Fprintf(out, "⏎  Send on enter: %t\n", st.SendOnEnter)

		if statusRecord {
			if err := inspectCache(out, a.cfg); err != nil {
				return err
			}
		}

		if statusRemote {
			fmt.Fprintln(out)
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if err := a.transport.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("backend unreachable: %w", err)
			}
			fmt.Fprintf(out, "✅ Connected (server version %s)\n", a.transport.HAVersion())
		}
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func cacheLocation(cfg *internal.Config) string {
	if cfg.Cache.Backend == internal.CacheBackendMemory {
		return "in memory"
	}
	if cfg.Cache.Path != "" {
		return cfg.Cache.Path
	}
	paths, err := internal.DetectPaths()
	if err != nil {
		return "unknown"
	}
	return paths.CachePath(cfg.Cache.Backend)
}

// cacheRecord is one row of the sessionCache table
type cacheRecord struct {
	Key       string
	Size      int
	UpdatedAt time.Time
}

// inspectCache lists the rows of a sqlite session cache
func inspectCache(out io.Writer, cfg *internal.Config) error {
	if cfg.Cache.Backend != internal.CacheBackendSQLite {
		return fmt.Errorf("--records needs the sqlite cache backend (current: %s)", cfg.Cache.Backend)
	}

	dbPath := cacheLocation(cfg)
	db, err := internal.OpenDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	records, err := getCacheRecords(db)
	if err != nil {
		return fmt.Errorf("failed to read cache records: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "📋 Database: %s\n", dbPath)
	fmt.Fprintf(out, "📊 Found %d record(s)\n", len(records))
	for _, r := range records {
		fmt.Fprintf(out, "  • %s: %s, updated %s\n", r.Key, humanize.Bytes(uint64(r.Size)), humanize.Time(r.UpdatedAt))
	}
	return nil
}

func getCacheRecords(db *sql.DB) ([]cacheRecord, error) {
	rows, err := db.Query(`
		SELECT key, length(value), updated_at FROM sessionCache
		ORDER BY key
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []cacheRecord
	for rows.Next() {
		var r cacheRecord
		var updated int64
		if err := rows.Scan(&r.Key, &r.Size, &updated); err != nil {
			continue
		}
		r.UpdatedAt = time.UnixMilli(updated)
		records = append(records, r)
	}
	return records, rows.Err()
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusRemote, "remote", false, "Check the backend connection")
	statusCmd.Flags().BoolVar(&statusRecord, "records", false, "List the records of a sqlite session cache")
}
