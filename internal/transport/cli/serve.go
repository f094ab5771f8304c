package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asepsopiyan/keris-lite/internal/app"
	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
	httptransport "github.com/asepsopiyan/keris-lite/internal/transport/http"
)

var serveWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, bootstrap.Options{StartWorker: serveWorker}, func(ctx context.Context, a *bootstrap.App) error {
			return httptransport.Serve(ctx, a)
		})
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume ingest jobs from RabbitMQ",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, bootstrap.Options{StartWorker: true}, func(ctx context.Context, a *bootstrap.App) error {
			if a.IngestWorker == nil {
				return errors.New("rabbitmq is disabled (rabbitmq.enabled = false)")
			}
			cmd.Println("Waiting for ingest jobs. Press Ctrl+C to stop.")
			<-ctx.Done()
			return nil
		})
	},
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password [password]",
	Short: "Print a bcrypt hash for auth.admin_password_hash",
	Long: `Hashes the given password, or the first line of stdin when no
argument is given, for use as the admin password hash.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHashPassword,
}

func init() {
	serveCmd.Flags().BoolVar(&serveWorker, "worker", true, "also consume ingest jobs when rabbitmq is enabled")
	rootCmd.AddCommand(serveCmd, workerCmd, hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		raw, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		password, _, _ = strings.Cut(string(raw), "\n")
	}

	hash, err := app.HashPassword(strings.TrimSpace(password))
	if err != nil {
		return err
	}
	cmd.Println(hash)
	return nil
}
