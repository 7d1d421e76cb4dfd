// Package app assembles the stores, services and HTTP handlers from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"bookkeeper/internal/auth"
	"bookkeeper/internal/config"
	"bookkeeper/internal/events"
	"bookkeeper/internal/expense"
	"bookkeeper/internal/handlers"
	"bookkeeper/internal/storage/localfs"
	"bookkeeper/internal/storage/mongo"
	"bookkeeper/internal/storage/sqlite"
)

// App is the wired application.
type App struct {
	Handlers *handlers.Handlers
	Store    expense.Store

	closers []func() error
}

// New opens the configured back end and builds the handlers.
// assets must contain templates/*.html.
func New(ctx context.Context, cfg config.Config, assets fs.FS, logger *slog.Logger) (*App, error) {
	a := &App{}

	receipts, err := a.openStorage(ctx, cfg.Storage, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	publisher := events.Publisher(events.Nop{})
	if cfg.AMQP.Enabled() {
		p, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
		logger.Info("publishing expense events", "exchange", cfg.AMQP.Exchange)
	}

	creds, err := auth.NewCredentials(cfg.Auth.Username, cfg.Auth.Password, cfg.Auth.PasswordHash)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	secret := cfg.Auth.SecretKey
	if secret == "" {
		if secret, err = auth.GenerateSecret(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
		logger.Warn("SECRET_KEY is not set; sessions will not survive a restart")
	}

	a.Handlers = handlers.NewHandlers(handlers.Deps{
		Store:        a.Store,
		Service:      expense.NewService(a.Store, receipts, logger, expense.WithPublisher(publisher)),
		Aggregator:   expense.NewAggregator(a.Store),
		Exporter:     expense.NewExporter(a.Store),
		Credentials:  creds,
		Sessions:     auth.NewSessionManager(secret, cfg.Auth.SessionTTL),
		Templates:    assets,
		Logger:       logger,
		SecureCookie: cfg.Auth.SecureCookie,
		MaxUpload:    cfg.Server.MaxUploadBytes,
		Now:          time.Now,
	})
	return a, nil
}

func (a *App) openStorage(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (expense.ReceiptStore, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := mongo.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
		logger.Info("using mongo storage", "database", cfg.MongoDB)
		return store.Receipts(), nil

	case config.BackendSQLite, "":
		db, err := sqlite.NewDB(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.Store = db
		a.closers = append(a.closers, db.Close)
		receipts, err := localfs.NewReceipts(cfg.UploadDir)
		if err != nil {
			return nil, fmt.Errorf("open upload dir: %w", err)
		}
		logger.Info("using sqlite storage", "path", cfg.DBPath, "uploads", cfg.UploadDir)
		return receipts, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Close releases the broker connection and the store, in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
