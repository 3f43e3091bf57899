// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"itsm-ticket-bridge/internal/config"
	"itsm-ticket-bridge/internal/domain/ports/adapter"
	notifyAdapters "itsm-ticket-bridge/internal/infra/adapters/notify"
	"itsm-ticket-bridge/internal/infra/adapters/ticketing"
	pg "itsm-ticket-bridge/internal/infra/db/postgres"
	"itsm-ticket-bridge/internal/infra/logging"
	"itsm-ticket-bridge/internal/infra/metrics"
	red "itsm-ticket-bridge/internal/infra/redis"
	"itsm-ticket-bridge/internal/infra/sched"
	"itsm-ticket-bridge/internal/infra/web"
	"itsm-ticket-bridge/internal/infra/worker"
	"itsm-ticket-bridge/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "development mode (noop remote client, console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	requestRepo := pg.NewRequestRepo(pool, tm)
	ticketRepo := pg.NewTicketRepo(pool)

	// ---- Remote ticketing client ----
	var client adapter.TicketingClient
	if cfg.Runtime.Dev && cfg.ServiceNow.BaseURL == "" {
		client = ticketing.NewNoopClient()
		logger.Info().Msg("ticketing client: noop")
	} else {
		client, err = ticketing.NewSNowClient(cfg.ServiceNow.BaseURL, cfg.ServiceNow.Username, cfg.ServiceNow.Password)
		if err != nil {
			logger.Fatal().Err(err).Msg("ticketing client")
		}
		logger.Info().Str("base_url", cfg.ServiceNow.BaseURL).Msg("ticketing client: servicenow")
	}
	client = ticketing.NewLimitedClient(client, rateLimiter, cfg.Sync.RateLimit, cfg.Sync.RateLimitWindow)

	// ---- Notifier ----
	var notifier adapter.Notifier
	if cfg.Notify.TelegramToken != "" && cfg.Notify.ChatID != 0 {
		notifier, err = notifyAdapters.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.ChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
	} else {
		notifier = notifyAdapters.NewNoopNotifier()
	}

	// ---- Engine ----
	requestUC := usecase.NewRequestUseCase(requestRepo, ticketRepo, client, locker, notifier, logger)

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Sync.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	syncWorker := sched.NewSyncWorker(requestUC, ticketRepo, pool2, cfg.Sync.Interval, cfg.Sync.BatchLimit, logger)
	go func() { _ = syncWorker.Run(ctx) }()

	reconciler := sched.NewStaleReconciler(requestUC, requestRepo, ticketRepo, cfg.Sync.Interval, cfg.Sync.StaleAfter, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret)
	server := web.NewServer(requestUC, client, auth, logger)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Web.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.Web.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	cancel()
}
