package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"cardflow/internal/domain"
)

// LogNotifier is the fallback when no broker is configured: events land in
// the structured log instead of being dropped silently.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logrus.WithField("component", "notifier")}
}

func (n *LogNotifier) TransactionSucceeded(_ context.Context, event domain.TransactionSucceeded) error {
	n.log.WithFields(logrus.Fields{
		"transaction_id": event.TransactionID,
		"kind":           event.Kind,
		"provider":       event.Provider,
		"amount":         event.Amount.String(),
		"currency":       event.Currency,
	}).Info("transaction succeeded")
	return nil
}
