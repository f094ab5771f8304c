package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
)

var (
	askLimit     int
	askThreshold float64
	askFile      string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the ingested documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 0, "number of chunks to retrieve (default retrieval.limit)")
	askCmd.Flags().Float64Var(&askThreshold, "threshold", 0, "minimum similarity score (default retrieval.score_threshold)")
	askCmd.Flags().StringVar(&askFile, "file", "", "only search chunks of this source file")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	input := app.AskInput{
		Question: strings.Join(args, " "),
		Limit:    askLimit,
	}
	if cmd.Flags().Changed("threshold") {
		input.ScoreThreshold = &askThreshold
	}
	if askFile != "" {
		input.Filters = map[string]any{"file": askFile}
	}

	return withApp(cmd, bootstrap.Options{}, func(ctx context.Context, a *bootstrap.App) error {
		result, err := a.RAG.Answer(ctx, input)
		if err != nil {
			return fmt.Errorf("ask failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, result)
		}

		cmd.Println(result.Answer)
		if len(result.Refs) == 0 {
			return nil
		}
		cmd.Println()
		cmd.Println("Sources:")
		for i, ref := range result.Refs {
			cmd.Printf("  [%d] %s #%d (%.3f)\n", i+1, ref.File, ref.Idx, ref.Score)
		}
		return nil
	})
}
