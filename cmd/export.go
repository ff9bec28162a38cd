package cmd

import (
	"os"
	"path/filepath"

	"github.com/iksnae/codetask-session/internal"
	"github.com/iksnae/codetask-session/internal/export"
	"github.com/spf13/cobra"
)

var (
	format  string
	outFile string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the cached conversation to a file",
	Long: `Export the conversation of the current user to various formats (jsonl, md, yaml, json).

Without --out the export is written to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Create exporter first so a bad format fails without touching the cache
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		a, err := openSession(cmd, false)
		if err != nil {
			return err
		}
		defer a.Close()

		transcript := a.session.Transcript()
		if outFile == "" {
			if err := exporter.Export(&transcript, cmd.OutOrStdout()); err != nil {
				return &internal.ExportError{Format: format, Path: "stdout", Err: err}
			}
			return nil
		}

		if dir := filepath.Dir(outFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return &internal.ExportError{Format: format, Path: outFile, Err: err}
			}
		}
		file, err := os.Create(outFile)
		if err != nil {
			return &internal.ExportError{Format: format, Path: outFile, Err: err}
		}
		if err := exporter.Export(&transcript, file); err != nil {
			_ = file.Close()
			return &internal.ExportError{Format: format, Path: outFile, Err: err}
		}
		if err := file.Close(); err != nil {
			return &internal.ExportError{Format: format, Path: outFile, Err: err}
		}

		internal.LogInfo("Exported %d message(s) to %s", len(transcript.Messages), outFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outFile, "out", "o", "", "Output file (default: stdout)")
}
