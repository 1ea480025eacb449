// Package gateway talks to the two payment providers and owns every piece of
// provider vocabulary. Nothing outside this package interprets a raw provider
// status string.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"cardflow/internal/domain"
)

var (
	// ErrTransactionNotFound means the provider has no record for the
	// reference yet. Callers treat this as still-pending, never FAILED.
	ErrTransactionNotFound = errors.New("gateway: transaction not found")
	// ErrInvalidPhone is returned before any network call is made.
	ErrInvalidPhone = errors.New("gateway: invalid phone number")
	// ErrUnavailable covers timeouts, 5xx responses and an open breaker;
	// verification is inconclusive and should be retried on the next
	// trigger.
	ErrUnavailable = errors.New("gateway: provider unavailable")
)

// InitiateRequest is the canonical initiation input shared by both adapters.
type InitiateRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Phone       string
	Email       string
	RedirectURL string
}

// InitiateResult normalizes what a provider hands back after initiation.
type InitiateResult struct {
	ProviderRef string
	// Instructions is either a hosted payment link (PAYLINK) or payer
	// guidance for the USSD prompt (MOMO).
	Instructions string
	Raw          json.RawMessage
}

// VerifyResult is the canonical verification tuple.
type VerifyResult struct {
	Reference string
	Status    domain.Status
	Raw       json.RawMessage
}

// Adapter is implemented once per provider.
type Adapter interface {
	Provider() domain.Provider
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// Verify is read-only on the provider side and safe to call any
	// number of times with the same identifier.
	Verify(ctx context.Context, identifier string) (*VerifyResult, error)
}

const callTimeout = 15 * time.Second

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}
