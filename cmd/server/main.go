package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"cardflow/internal/cache"
	"cardflow/internal/config"
	"cardflow/internal/database"
	"cardflow/internal/domain"
	"cardflow/internal/engine"
	"cardflow/internal/gateway"
	"cardflow/internal/notify"
	"cardflow/internal/repo"
	"cardflow/internal/resolver"
	"cardflow/internal/server"
	"cardflow/internal/service"
	"cardflow/internal/worker"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logrus.WithError(err).Fatal("migration failed")
	}

	transactions := repo.NewTransactionRepo(db)

	tokens := gateway.NewTokenCache(nil, cfg.MomoBaseURL, cfg.MomoAPIUser, cfg.MomoAPIKey, cfg.MomoSubscriptionKey)
	adapters := map[domain.Provider]gateway.Adapter{
		domain.ProviderMomo:    gateway.NewMomoAdapter(nil, tokens, cfg.MomoBaseURL, cfg.MomoSubscriptionKey, cfg.MomoCountryCode),
		domain.ProviderPaylink: gateway.NewPaylinkAdapter(nil, cfg.PaylinkBaseURL, cfg.PaylinkSecretKey),
	}

	var notifier engine.Notifier
	if cfg.AMQPURL != "" {
		amqpNotifier, err := notify.NewAMQPNotifier(cfg.AMQPURL)
		if err != nil {
			logrus.WithError(err).Fatal("amqp unavailable")
		}
		defer amqpNotifier.Close()
		notifier = amqpNotifier
	} else {
		logrus.Warn("no AMQP_URL configured, succeeded events go to the log")
		notifier = notify.NewLogNotifier()
	}

	eng := engine.New(transactions, notifier)
	res := resolver.New(transactions)
	payments := service.NewPaymentService(transactions, res, adapters, eng)

	poller := worker.NewPoller(transactions, adapters, eng,
		cfg.PollInterval, cfg.PollLookback, cfg.PollItemDelay, cfg.PollBatchSize)
	go poller.Run(ctx)

	limiter := cache.NewRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		cfg.VerifyRateLimit, cfg.VerifyRateWindow)
	defer limiter.Close()

	srv := server.New(cfg, payments, tokens, limiter, db)

	go func() {
		logrus.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("shutdown incomplete")
	}
}
