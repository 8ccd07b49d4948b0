package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"cbt-coach/internal/conversation"
	"cbt-coach/internal/platform/database"
)

var (
	port          string
	runMigrations bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("port") {
			cfg.Port = port
		}

		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if runMigrations {
			if err := database.Migrate(db, cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
				return err
			}
			logger.InfoContext(ctx, "migrations applied")
		}

		a, err := newApp(db)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           newRouter(db, a),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment,
				"prompt_version", a.prompts.Snapshot().Version)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down")
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
		// Let in-flight clinician alerts finish before the process exits.
		a.service.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	serveCmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply pending migrations before serving")
}

func newRouter(db *sqlx.DB, a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for the web client
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		conversation.RegisterRoutes(r, conversation.NewHandler(a.service, a.prompts))
	})
	return r
}
