// Command worker runs Catapult's Worker service: isolated build
// execution, reverse-proxy route programming, and optional tunnel
// ingress, behind a signed job-intake HTTP surface.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"catapult/internal/worker/build"
	"catapult/internal/worker/callback"
	"catapult/internal/worker/config"
	"catapult/internal/worker/dockerutil"
	"catapult/internal/worker/limits"
	"catapult/internal/worker/network"
	"catapult/internal/worker/route"
	"catapult/internal/worker/server"
	"catapult/internal/worker/tunnel"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	profile, err := limits.Load(cfg.LimitsPath)
	if err != nil {
		log.Fatal("limits", zap.Error(err))
	}

	var networkID string
	var docker *dockerutil.Client
	if !cfg.DirectBuild {
		docker, err = dockerutil.NewClient()
		if err != nil {
			log.Fatal("docker", zap.Error(err))
		}
		defer docker.Close()

		warden := &network.Warden{Docker: docker, Log: log}
		networkID, err = warden.Ensure(context.Background())
		if err != nil {
			log.Fatal("build network", zap.Error(err))
		}
	}

	routeProgrammer := route.New(cfg.CaddyAdminAPI, log)
	if err := routeProgrammer.RecoverSites(context.Background(), cfg.SitesDir); err != nil {
		log.Error("recover sites", zap.Error(err))
	}

	tunnelProgrammer := tunnel.New(tunnel.Config{
		APIToken:   cfg.CloudflareAPIToken,
		AccountID:  cfg.CloudflareAccountID,
		TunnelID:   cfg.CloudflareTunnelID,
		ServiceURL: cfg.CloudflareServiceURL,
	}, log)

	reporter := callback.New([]byte(cfg.WorkerSharedSecret))

	engine := build.New(build.Config{
		SitesDir:    cfg.SitesDir,
		WorkDirBase: cfg.WorkDirBase,
		Image:       cfg.BuildImage,
		NetworkID:   networkID,
		Limits:      profile,
		DirectBuild: cfg.DirectBuild,
		Docker:      docker,
		Route:       routeProgrammer,
		Tunnel:      tunnelProgrammer,
		Log:         log,
	})

	runner := &build.Runner{
		Engine:   engine,
		Route:    routeProgrammer,
		Tunnel:   tunnelProgrammer,
		SitesDir: cfg.SitesDir,
		Reporter: reporter,
		Log:      log,
	}

	srv := &server.Server{
		Builder:      runner,
		Cleaner:      runner,
		SharedSecret: []byte(cfg.WorkerSharedSecret),
		Log:          log,
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
