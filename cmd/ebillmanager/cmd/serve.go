package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/api"
	"github.com/bher20/ebillmanager/internal/auth"
	"github.com/bher20/ebillmanager/internal/logging"
)

var serveWithWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the bill API, metrics and web UI",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the scheduled billing job in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Named("serve")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var authSvc *auth.Service
	if cfg.Auth.Enabled {
		authSvc, err = auth.NewService(a.store)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	mux := api.NewMux(api.Deps{
		Bills:     a.bills,
		Store:     a.store,
		Auth:      authSvc,
		Notify:    a.notify,
		RateLimit: cfg.RateLimit,
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if serveWithWorker {
		w, err := a.newWorker()
		if err != nil {
			return err
		}
		// Deferred after a.Close, so the worker has returned before the
		// store and publisher are closed.
		defer startBackground(ctx, stop, w, log)()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("ebillmanager listening",
			zap.String("addr", srv.Addr),
			zap.String("db_driver", cfg.Database.Driver),
			zap.Bool("auth", authSvc != nil))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type runner interface {
	Run(ctx context.Context) error
}

// startBackground runs r in its own goroutine. The returned func cancels
// ctx through stop and blocks until r has returned.
func startBackground(ctx context.Context, stop context.CancelFunc, r runner, log *zap.Logger) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", zap.Error(err))
		}
	}()
	return func() {
		stop()
		<-done
	}
}
