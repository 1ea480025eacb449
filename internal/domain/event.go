package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionSucceeded is emitted once per transaction, on the
// PENDING -> SUCCESSFUL transition. Downstream consumers (card delivery
// email, top-up confirmation) key off Kind.
type TransactionSucceeded struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Kind          Kind            `json:"kind"`
	Provider      Provider        `json:"provider"`
	ProviderRef   string          `json:"provider_ref"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
