package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusSuccessful Status = "SUCCESSFUL"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether a status can never change again.
func (s Status) Terminal() bool {
	return s == StatusSuccessful || s == StatusFailed
}

type Kind string

const (
	KindCardPurchase Kind = "CARD_PURCHASE"
	KindTopUp        Kind = "TOP_UP"
	KindGenericOrder Kind = "GENERIC_ORDER"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCardPurchase, KindTopUp, KindGenericOrder:
		return true
	}
	return false
}

type Provider string

const (
	ProviderMomo    Provider = "MOMO"
	ProviderPaylink Provider = "PAYLINK"
)

func (p Provider) Valid() bool {
	return p == ProviderMomo || p == ProviderPaylink
}

// Transaction is the single order-like record for every payment flow the
// shop runs: card purchases, top-ups and generic orders all share it, tagged
// by Kind. A provider may hand back up to four different identifiers for the
// same payment; any of them must resolve to this record.
type Transaction struct {
	ID            uuid.UUID
	Kind          Kind
	Provider      Provider
	ProviderRef   string // reference we assign and submit to the provider
	TxRef         string
	FlowRef       string
	ProviderTxnID string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	CustomerPhone string
	Status        Status
	// PaymentDetails accumulates every raw provider payload seen for this
	// transaction; merged on update, never replaced.
	PaymentDetails json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
