// Package engine is the payment status state machine. Webhooks, the poll
// scheduler and the manual check endpoint all converge here; whatever order
// and however often they arrive, a transaction moves out of PENDING at most
// once and the succeeded notification fires at most once.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cardflow/internal/domain"
	"cardflow/internal/metrics"
)

// Outcome reports what a call to Apply actually did, so each trigger can
// pick its own response independent of whether anything changed.
type Outcome int

const (
	// OutcomeNoChange: incoming status was PENDING, details merged only.
	OutcomeNoChange Outcome = iota
	// OutcomeAlreadyFinal: the transaction was terminal before or became
	// terminal under us; this call was a no-op on status.
	OutcomeAlreadyFinal
	// OutcomeSucceeded: this call committed PENDING -> SUCCESSFUL.
	OutcomeSucceeded
	// OutcomeFailed: this call committed PENDING -> FAILED.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoChange:
		return "no_change"
	case OutcomeAlreadyFinal:
		return "already_final"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Store is the slice of the repository the engine writes through. The
// transition is a conditional update (WHERE status = 'PENDING') so two
// concurrent triggers cannot both commit; the loser sees false.
type Store interface {
	TransitionStatus(ctx context.Context, id uuid.UUID, status domain.Status, details []byte) (bool, error)
	MergeDetails(ctx context.Context, id uuid.UUID, details []byte) error
}

// Notifier receives the one TransactionSucceeded event per transaction.
type Notifier interface {
	TransactionSucceeded(ctx context.Context, event domain.TransactionSucceeded) error
}

type Engine struct {
	store    Store
	notifier Notifier
	log      *logrus.Entry
}

func New(store Store, notifier Notifier) *Engine {
	return &Engine{
		store:    store,
		notifier: notifier,
		log:      logrus.WithField("component", "engine"),
	}
}

// Apply reconciles one observation of a transaction's status. It is safe to
// call any number of times from any trigger with payloads in any order.
func (e *Engine) Apply(ctx context.Context, txn *domain.Transaction, status domain.Status, rawPayload []byte) (Outcome, error) {
	log := e.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"provider_ref":   txn.ProviderRef,
		"incoming":       status,
	})

	// Terminal states never change; keep the payload for the audit trail.
	if txn.Status.Terminal() {
		if err := e.store.MergeDetails(ctx, txn.ID, rawPayload); err != nil {
			return OutcomeAlreadyFinal, err
		}
		metrics.TransitionsTotal.WithLabelValues(OutcomeAlreadyFinal.String()).Inc()
		return OutcomeAlreadyFinal, nil
	}

	if status == domain.StatusPending {
		if err := e.store.MergeDetails(ctx, txn.ID, rawPayload); err != nil {
			return OutcomeNoChange, err
		}
		metrics.TransitionsTotal.WithLabelValues(OutcomeNoChange.String()).Inc()
		return OutcomeNoChange, nil
	}

	committed, err := e.store.TransitionStatus(ctx, txn.ID, status, rawPayload)
	if err != nil {
		return OutcomeNoChange, err
	}
	if !committed {
		// Another trigger won the transition between our read and this
		// write. Keep the payload, change nothing else.
		log.Warn("transition lost to a concurrent trigger")
		if err := e.store.MergeDetails(ctx, txn.ID, rawPayload); err != nil {
			return OutcomeAlreadyFinal, err
		}
		metrics.TransitionsTotal.WithLabelValues(OutcomeAlreadyFinal.String()).Inc()
		return OutcomeAlreadyFinal, nil
	}

	if status == domain.StatusFailed {
		log.Info("transaction failed")
		metrics.TransitionsTotal.WithLabelValues(OutcomeFailed.String()).Inc()
		return OutcomeFailed, nil
	}

	log.Info("transaction succeeded")
	metrics.TransitionsTotal.WithLabelValues(OutcomeSucceeded.String()).Inc()
	e.notify(ctx, txn)
	return OutcomeSucceeded, nil
}

// notify emits the succeeded event. The transition has already committed, so
// a publish failure is logged and counted rather than rolled back.
func (e *Engine) notify(ctx context.Context, txn *domain.Transaction) {
	event := domain.TransactionSucceeded{
		TransactionID: txn.ID,
		Kind:          txn.Kind,
		Provider:      txn.Provider,
		ProviderRef:   txn.ProviderRef,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		CustomerEmail: txn.CustomerEmail,
		OccurredAt:    time.Now().UTC(),
	}
	if err := e.notifier.TransactionSucceeded(ctx, event); err != nil {
		metrics.NotificationFailures.Inc()
		e.log.WithError(err).WithField("transaction_id", txn.ID).
			Error("failed to publish succeeded event")
		return
	}
	metrics.NotificationsTotal.Inc()
}
