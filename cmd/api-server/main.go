package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/clinicdesk/scheduling-assistant/internal/api"
	"github.com/clinicdesk/scheduling-assistant/internal/clinic"
	"github.com/clinicdesk/scheduling-assistant/internal/config"
	"github.com/clinicdesk/scheduling-assistant/internal/db"
	"github.com/clinicdesk/scheduling-assistant/internal/export"
	"github.com/clinicdesk/scheduling-assistant/internal/flow"
	"github.com/clinicdesk/scheduling-assistant/internal/notify"
	"github.com/clinicdesk/scheduling-assistant/internal/redisclient"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	repo := clinic.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
	svc := clinic.NewService(repo, locker, cfg)

	var email notify.EmailSender = notify.SimulatedEmailSender{}
	if sg := notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName); sg != nil {
		email = sg
		log.Println("email delivery via SendGrid")
	} else {
		log.Println("email delivery simulated (no SENDGRID_API_KEY)")
	}

	dispatcher := notify.NewDispatcher(
		email,
		notify.SimulatedSMSSender{From: cfg.SMSFrom},
		svc,
		repo,
		export.NewFileSink(cfg.ExportPath),
		notify.NewDeliveryMetrics(registry),
	)

	machine := flow.NewMachine(svc, svc, dispatcher)
	sessions := flow.NewSessionStore(machine)

	router := api.NewRouter(api.RouterConfig{
		Service:    svc,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		PgPool:     pgPool,
		Redis:      rdb,
		Registry:   registry,
		Env:        cfg.Env,
		Version:    version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
