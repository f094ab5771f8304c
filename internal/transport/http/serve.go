package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/asepsopiyan/keris-lite/internal/bootstrap"
)

// Serve runs the API until ctx is cancelled, then drains in-flight requests.
func Serve(ctx context.Context, app *bootstrap.App) error {
	server := &http.Server{
		Addr:              app.Config.HTTPAddr(),
		Handler:           NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	app.Logger.Info("server stopped")
	return nil
}
