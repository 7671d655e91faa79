// Command central runs Catapult's Central service: webhook intake,
// policy storage, dispatch, and worker health monitoring.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"catapult/internal/central/config"
	"catapult/internal/central/dispatch"
	"catapult/internal/central/githubapp"
	"catapult/internal/central/monitor"
	"catapult/internal/central/server"
	"catapult/internal/central/status"
	"catapult/internal/central/webhook"
	"catapult/internal/shared/store"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	app, err := githubapp.New(cfg.GithubAppID, cfg.GithubPrivateKeyPEM, "")
	if err != nil {
		log.Fatal("github app", zap.Error(err))
	}

	st, err := store.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}
	defer st.Close()

	if err := st.SyncWorkers(context.Background(), cfg.Workers); err != nil {
		log.Fatal("sync workers", zap.Error(err))
	}

	disp := dispatch.New(cfg.WorkerSharedSecret, nil)

	webhookIntake := &webhook.Intake{
		WebhookSecret: []byte(cfg.GithubWebhookSecret),
		App:           app,
		Store:         st,
		Dispatcher:    disp,
		CentralURL:    cfg.CentralURL,
		Log:           log,
	}
	statusIntake := &status.Intake{
		SharedSecret: []byte(cfg.WorkerSharedSecret),
		App:          app,
		Store:        st,
		Log:          log,
	}

	srv := &server.Server{
		Webhook:      webhookIntake,
		Status:       statusIntake,
		Heartbeat:    st,
		Auth:         st,
		AdminKey:     cfg.AdminKey,
		SharedSecret: []byte(cfg.WorkerSharedSecret),
		Log:          log,
	}

	mon := monitor.New(cfg.Workers, st, monitor.DefaultConfig(), log)
	monCtx, cancelMon := context.WithCancel(context.Background())
	go mon.Run(monCtx)

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
	cancelMon()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
