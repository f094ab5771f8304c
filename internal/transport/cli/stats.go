package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the vector collection",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the embedding cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached embeddings of the configured model",
	Args:  cobra.NoArgs,
	RunE:  runCachePurge,
}

func init() {
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(statsCmd, cacheCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, bootstrap.Options{}, func(ctx context.Context, a *bootstrap.App) error {
		info, err := a.Store.CollectionStats(ctx)
		if err != nil {
			return fmt.Errorf("stats failed: %w", err)
		}
		if info == nil {
			cmd.Printf("Collection %s does not exist yet.\n", a.Store.Collection())
			return nil
		}
		if jsonOutput {
			return printJSON(cmd, info)
		}
		cmd.Printf("Collection: %s\n", info.Name)
		cmd.Printf("  Status:    %s\n", info.Status)
		cmd.Printf("  Dimension: %d (%s)\n", info.Dimension, info.Distance)
		cmd.Printf("  Points:    %d\n", info.PointsCount)
		cmd.Printf("  Vectors:   %d\n", info.VectorsCount)
		return nil
	})
}

func runCachePurge(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, bootstrap.Options{}, func(ctx context.Context, a *bootstrap.App) error {
		if a.Cache == nil {
			return errors.New("embedding cache is disabled (redis.enabled = false)")
		}
		n, err := a.Cache.Purge(ctx, a.Embedder.Identity())
		if err != nil {
			return fmt.Errorf("purge failed: %w", err)
		}
		cmd.Printf("Removed %d cached embeddings for %s.\n", n, a.Embedder.Identity())
		return nil
	})
}
