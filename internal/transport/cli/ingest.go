package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
)

var ingestDir string

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Chunk, embed and store documents",
	Long: `Ingests the given files, or every pdf, txt and md file in the ingest
directory when no file is named. Re-ingesting a file overwrites its chunks.
A file that fails is reported and the rest of the batch continues.`,
	RunE: runIngest,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Drop the collection and ingest the directory from scratch",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "directory to ingest (default ingest.dir from config)")
	reindexCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "directory to ingest (default ingest.dir from config)")
	rootCmd.AddCommand(ingestCmd, reindexCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withApp(cmd, bootstrap.Options{}, func(ctx context.Context, a *bootstrap.App) error {
		var (
			report *app.IngestReport
			err    error
		)
		if len(args) > 0 {
			report, err = a.Ingest.IngestFiles(ctx, args)
		} else {
			report, err = a.Ingest.IngestDir(ctx, dirOrDefault(a))
		}
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		return printReport(cmd, report)
	})
}

func runReindex(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, bootstrap.Options{}, func(ctx context.Context, a *bootstrap.App) error {
		report, err := a.Ingest.Reindex(ctx, dirOrDefault(a))
		if err != nil {
			return fmt.Errorf("reindex failed: %w", err)
		}
		if err := printReport(cmd, report); err != nil {
			return err
		}
		info, err := a.Store.CollectionStats(ctx)
		if err != nil || info == nil || jsonOutput {
			return err
		}
		cmd.Printf("Collection %s now holds %d points.\n", info.Name, info.PointsCount)
		return nil
	})
}

func dirOrDefault(a *bootstrap.App) string {
	if ingestDir != "" {
		return ingestDir
	}
	return a.Config.Ingest.Dir
}

func printReport(cmd *cobra.Command, report *app.IngestReport) error {
	if jsonOutput {
		return printJSON(cmd, report)
	}
	for _, f := range report.Files {
		switch {
		case f.Err != nil:
			cmd.Printf("  FAIL %s: %s\n", f.File, f.Error)
		case f.Skipped:
			cmd.Printf("  SKIP %s: no text\n", f.File)
		default:
			cmd.Printf("  OK   %s: %d chunks\n", f.File, f.Chunks)
		}
	}
	cmd.Printf("Ingested %d files (%d chunks), %d failed, %d skipped in %dms.\n",
		report.Succeeded, report.Chunks, report.Failed, report.Skipped, report.DurationMS)
	return nil
}
