// Package app provides application-level wiring: it assembles the policy
// registry, data service, task graph, audit pipeline and HTTP router from
// config and database handles.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"planbase/internal/api"
	"planbase/internal/audit"
	"planbase/internal/config"
	"planbase/internal/middleware"
	"planbase/internal/policy"
	"planbase/internal/rest"
	"planbase/internal/tasks"
)

// Deps holds the external dependencies that main() must provide: database
// handles, config and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// App is the fully wired application.
type App struct {
	Router    *api.Handler
	Registry  *policy.Registry
	Data      *rest.Service
	Deps      *tasks.DependencyService
	Retention *audit.Retention
	Validator *middleware.TokenValidator
}

// New wires all services from the provided deps. It loads the policy file,
// seeds development fixtures, and prepares the audit retention schedule
// (started by the caller).
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("policy registry loaded", "tables", reg.Tables())

	resolver := policy.NewStoreMembershipResolver(deps.ReadDB)
	compiler := policy.NewCompiler(reg, resolver, logger.With("component", "policy"))
	guard := policy.NewGuard(reg, deps.ReadDB, logger.With("component", "guard"))

	recorder := audit.NewRecorder(deps.WriteDB, logger.With("component", "audit"))
	retention, err := audit.NewRetention(deps.WriteDB, cfg.AuditRetentionDays, logger.With("component", "audit"))
	if err != nil {
		return nil, fmt.Errorf("audit retention: %w", err)
	}

	data := rest.NewService(deps.WriteDB, deps.ReadDB, reg, compiler, guard, recorder, logger.With("component", "data"))
	depSvc := tasks.NewDependencyService(deps.WriteDB, deps.ReadDB, guard, recorder, logger.With("component", "tasks"))

	validator, err := middleware.NewTokenValidator(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("token validator: %w", err)
	}

	if !cfg.IsProduction() {
		if err := seedDevData(ctx, deps.WriteDB); err != nil {
			logger.Warn("seed dev data failed", "error", err)
		}
	}

	handler := api.NewHandler(data, depSvc, cfg.MaxPageSize, logger.With("component", "api"))

	return &App{
		Router:    handler,
		Registry:  reg,
		Data:      data,
		Deps:      depSvc,
		Retention: retention,
		Validator: validator,
	}, nil
}

// HTTPHandler assembles the router with the middleware stack from config.
func (a *App) HTTPHandler(cfg *config.Config) http.Handler {
	return api.NewRouter(a.Router, api.RouterConfig{
		Validator: a.Validator,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
}

// loadRegistry reads the policy file, or returns an empty registry (every
// table admin-only) when none is configured.
func loadRegistry(cfg *config.Config) (*policy.Registry, error) {
	if cfg.PolicyFile == "" {
		return policy.New(nil)
	}
	reg, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load policy file %s: %w", cfg.PolicyFile, err)
	}
	return reg, nil
}
