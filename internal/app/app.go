package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"github.com/ramcharankhv-byte/taskhub/internal/config"
	"github.com/ramcharankhv-byte/taskhub/internal/observability"
)

type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DB      *gorm.DB
	Runtime *observability.Runtime
	Server  *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rt *observability.Runtime, server *http.Server) *App {
	return &App{Config: cfg, Logger: logger, DB: db, Runtime: rt, Server: server}
}

// Shutdown stops accepting connections, flushes telemetry, and closes the
// database pool.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Runtime.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
