// Package app wires a workspace into a ready engine: database, schema,
// config and logger.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"collabhub/internal/config"
	"collabhub/internal/db"
	"collabhub/internal/engine"
	"collabhub/internal/migrate"
	"collabhub/internal/process"
	"collabhub/internal/server"
	collabsdk "collabhub/sdk/go"
)

type App struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	Logger    *zap.Logger
}

// Open migrates the workspace database and loads collabhub.yml, falling back
// to the defaults when the file is absent.
func Open(ctx context.Context, workspace string, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	version, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("workspace opened", zap.String("workspace", workspace), zap.Int("schema_version", version))
	eng := engine.New(conn, cfg, logger)
	if cfg.Process.HookURL != "" {
		eng.Process = process.NewWebhook(cfg.Process.HookURL, cfg.Process.Secret, cfg.Process.Timeout)
	}
	return &App{
		Workspace: workspace,
		DB:        conn,
		Config:    cfg,
		Engine:    eng,
		Logger:    logger,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Secrets are the per-tier JWT signing keys.
type Secrets struct {
	Local string
	Cloud string
}

// AuthConfig derives the token settings from config and secrets.
func (a *App) AuthConfig(s Secrets) (server.AuthConfig, error) {
	if s.Local == "" {
		return server.AuthConfig{}, fmt.Errorf("local jwt secret is required")
	}
	cfg := server.AuthConfig{
		LocalSecret:  s.Local,
		CloudSecret:  s.Cloud,
		TokenTTL:     a.Config.Auth.TokenTTL,
		CloudBaseURL: a.Config.Cloud.BaseURL,
	}
	if cfg.CloudBaseURL == "" && cfg.CloudSecret == "" {
		return server.AuthConfig{}, fmt.Errorf("cloud jwt secret is required when cloud.base_url is empty")
	}
	if cfg.CloudBaseURL != "" {
		client := collabsdk.New(cfg.CloudBaseURL, "")
		if a.Config.Cloud.Timeout > 0 {
			client.Timeout = a.Config.Cloud.Timeout
		}
		cfg.CloudClient = client
	}
	return cfg, nil
}

// HTTPServer builds the API server for this workspace.
func (a *App) HTTPServer(s Secrets) (*http.Server, error) {
	authCfg, err := a.AuthConfig(s)
	if err != nil {
		return nil, err
	}
	handler, err := server.New(server.Config{
		Engine:   a.Engine,
		BasePath: a.Config.Server.BasePath,
		Auth:     authCfg,
		Logger:   a.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           handler,
		ReadTimeout:       a.Config.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.Config.Server.WriteTimeout,
	}, nil
}

// NewLogger returns the process logger. debug switches to the development
// encoder at debug level.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
