// Command sweep runs a single reconciliation pass and exits. Useful for
// catching up after downtime without waiting for the scheduler.
package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"cardflow/internal/config"
	"cardflow/internal/database"
	"cardflow/internal/domain"
	"cardflow/internal/engine"
	"cardflow/internal/gateway"
	"cardflow/internal/notify"
	"cardflow/internal/repo"
	"cardflow/internal/worker"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	db, err := database.Open(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()

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
		notifier = notify.NewLogNotifier()
	}

	eng := engine.New(transactions, notifier)
	poller := worker.NewPoller(transactions, adapters, eng,
		cfg.PollInterval, cfg.PollLookback, cfg.PollItemDelay, cfg.PollBatchSize)

	poller.Sweep(ctx)
	logrus.Info("sweep complete")
}
