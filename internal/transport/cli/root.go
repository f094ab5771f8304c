// Package cli holds the keris command line: ingestion, retrieval and the
// long running server and worker.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
)

var (
	configFile string
	jsonOutput bool
)

// bootApp is swapped out in tests.
var bootApp = bootstrap.New

var rootCmd = &cobra.Command{
	Use:           "keris",
	Short:         "Retrieval-augmented answers over a local document folder",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if configFile != "" {
			return os.Setenv("CONFIG_FILE", configFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default configs/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// withApp boots the application for one command and closes it afterwards.
// The context is cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, opts bootstrap.Options, fn func(ctx context.Context, app *bootstrap.App) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootApp(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn("close resources failed", "error", err)
		}
	}()
	return fn(ctx, app)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
