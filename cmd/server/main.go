package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jodi-app/jodi-server/internal/app"
	"github.com/jodi-app/jodi-server/internal/config"
	"github.com/jodi-app/jodi-server/internal/logger"
	"github.com/jodi-app/jodi-server/internal/server"
	"github.com/jodi-app/jodi-server/internal/service/agents"
	"github.com/jodi-app/jodi-server/internal/service/auth"
	"github.com/jodi-app/jodi-server/internal/service/billing"
	"github.com/jodi-app/jodi-server/internal/service/chat"
	"github.com/jodi-app/jodi-server/internal/service/discovery"
	"github.com/jodi-app/jodi-server/internal/service/moderation"
	"github.com/jodi-app/jodi-server/internal/service/notification"
	"github.com/jodi-app/jodi-server/internal/service/profile"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)

	appCtx, err := app.New(cfg)
	if err != nil {
		logger.Error("failed to init app", "err", err)
		return
	}
	defer func() { _ = appCtx.Close() }()

	go appCtx.Hub.Run()

	registrars := []server.Registrar{
		auth.NewRegistrar(appCtx),
		profile.NewRegistrar(appCtx),
		discovery.NewRegistrar(appCtx),
		chat.NewRegistrar(appCtx),
		billing.NewRegistrar(appCtx),
		moderation.NewRegistrar(appCtx),
		notification.NewRegistrar(appCtx),
		agents.NewRegistrar(appCtx),
	}

	router := server.NewRouter(cfg, appCtx.Cache, registrars...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, cfg, router); err != nil {
		logger.Error("http server exited", "err", err)
	}
}
