package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cardflow/internal/domain"
	"cardflow/internal/engine"
	"cardflow/internal/gateway"
	"cardflow/internal/metrics"
	"cardflow/internal/repo"
)

// Applier is satisfied by *engine.Engine.
type Applier interface {
	Apply(ctx context.Context, txn *domain.Transaction, status domain.Status, rawPayload []byte) (engine.Outcome, error)
}

// Poller periodically re-checks PENDING transactions against their provider.
// It is one of three triggers feeding the engine; webhooks and manual checks
// run concurrently with it and need no coordination beyond the engine's own
// idempotency.
type Poller struct {
	repo     repo.TransactionRepo
	adapters map[domain.Provider]gateway.Adapter
	applier  Applier

	interval  time.Duration
	lookback  time.Duration
	itemDelay time.Duration
	batchSize int

	// sweeping keeps a slow sweep from overlapping the next tick.
	sweeping atomic.Bool
	log      *logrus.Entry
}

func NewPoller(
	r repo.TransactionRepo,
	adapters map[domain.Provider]gateway.Adapter,
	applier Applier,
	interval, lookback, itemDelay time.Duration,
	batchSize int,
) *Poller {
	return &Poller{
		repo:      r,
		adapters:  adapters,
		applier:   applier,
		interval:  interval,
		lookback:  lookback,
		itemDelay: itemDelay,
		batchSize: batchSize,
		log:       logrus.WithField("component", "poller"),
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.WithFields(logrus.Fields{
		"interval": p.interval,
		"lookback": p.lookback,
	}).Info("poll scheduler started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info("poll scheduler stopped")
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs one enumerate-and-verify pass. Returns false if a sweep was
// already in flight.
func (p *Poller) Sweep(ctx context.Context) bool {
	if !p.sweeping.CompareAndSwap(false, true) {
		p.log.Warn("sweep still in flight, skipping tick")
		return false
	}
	defer p.sweeping.Store(false)

	start := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	pending, err := p.repo.ListPending(ctx, p.lookback, p.batchSize)
	if err != nil {
		p.log.WithError(err).Error("failed to list pending transactions")
		return true
	}
	metrics.SweepCandidates.Observe(float64(len(pending)))
	if len(pending) == 0 {
		return true
	}

	p.log.WithField("count", len(pending)).Info("sweeping pending transactions")

	for i := range pending {
		txn := &pending[i]
		p.check(ctx, txn)

		// Fixed delay between provider calls to stay under rate limits.
		select {
		case <-ctx.Done():
			return true
		case <-time.After(p.itemDelay):
		}
	}
	return true
}

func (p *Poller) check(ctx context.Context, txn *domain.Transaction) {
	log := p.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"provider":       txn.Provider,
		"provider_ref":   txn.ProviderRef,
	})

	adapter, ok := p.adapters[txn.Provider]
	if !ok {
		log.Error("no adapter for provider")
		return
	}

	result, err := adapter.Verify(ctx, txn.ProviderRef)
	if errors.Is(err, gateway.ErrTransactionNotFound) {
		// Provider has not seen it yet; still pending, try again next sweep.
		return
	}
	if err != nil {
		log.WithError(err).Warn("verification inconclusive")
		return
	}

	if _, err := p.applier.Apply(ctx, txn, result.Status, result.Raw); err != nil {
		log.WithError(err).Error("failed to apply verified status")
	}
}
