package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bookkeeper/internal/app"
	"bookkeeper/internal/config"
	"bookkeeper/internal/handlers"
	"bookkeeper/internal/middleware"
	"bookkeeper/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, *cfg, web.Assets, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("close failed", "error", err)
		}
	}()

	static, err := fs.Sub(web.Assets, "static")
	if err != nil {
		return err
	}

	mux := setupRouter(a.Handlers, static)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      middleware.Chain(middleware.RequestID, middleware.Logger(logger), middleware.Recovery(logger))(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "backend", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRouter(h *handlers.Handlers, static fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)
	mux.HandleFunc("GET /logout", h.Logout)

	protected := func(fn http.HandlerFunc) http.Handler { return h.AuthMiddleware(fn) }
	mux.Handle("GET /{$}", protected(h.Dashboard))
	mux.Handle("GET /expenses", protected(h.ListExpenses))
	mux.Handle("GET /add", protected(h.AddExpenseForm))
	mux.Handle("POST /add", protected(h.AddExpense))
	mux.Handle("GET /edit/{id}", protected(h.EditExpenseForm))
	mux.Handle("POST /edit/{id}", protected(h.UpdateExpense))
	mux.Handle("POST /delete/{id}", protected(h.DeleteExpense))
	mux.Handle("GET /receipts/{ref}", protected(h.Receipt))
	mux.Handle("GET /export.csv", protected(h.Export))

	return mux
}
