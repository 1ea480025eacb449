package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cardflow/internal/domain"
	"cardflow/internal/engine"
	"cardflow/internal/gateway"
	"cardflow/internal/repo"
	"cardflow/internal/resolver"
)

var (
	ErrValidation = errors.New("service: invalid payment request")
	ErrNotFound   = errors.New("service: payment not found")
)

type CreatePaymentInput struct {
	Kind        domain.Kind
	Provider    domain.Provider
	Amount      decimal.Decimal
	Currency    string
	Email       string
	Phone       string
	RedirectURL string
}

type PaymentService interface {
	// CreatePayment records a PENDING transaction and initiates it with
	// the matching provider. Instructions are a payment link or payer
	// guidance, depending on the provider.
	CreatePayment(ctx context.Context, in CreatePaymentInput) (*domain.Transaction, string, error)
	// ManualCheck resolves a reference, verifies with the provider and
	// applies the result. When the provider is unreachable it falls back
	// to the last persisted status instead of failing.
	ManualCheck(ctx context.Context, reference string) (domain.Status, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	ProcessMomoWebhook(ctx context.Context, body []byte) error
	ProcessPaylinkWebhook(ctx context.Context, body []byte) error
}

type paymentService struct {
	repo     repo.TransactionRepo
	resolver *resolver.Resolver
	adapters map[domain.Provider]gateway.Adapter
	engine   *engine.Engine
	log      *logrus.Entry
}

func NewPaymentService(
	r repo.TransactionRepo,
	res *resolver.Resolver,
	adapters map[domain.Provider]gateway.Adapter,
	eng *engine.Engine,
) PaymentService {
	return &paymentService{
		repo:     r,
		resolver: res,
		adapters: adapters,
		engine:   eng,
		log:      logrus.WithField("component", "payments"),
	}
}

func (s *paymentService) CreatePayment(ctx context.Context, in CreatePaymentInput) (*domain.Transaction, string, error) {
	if !in.Kind.Valid() {
		return nil, "", fmt.Errorf("%w: unknown kind %q", ErrValidation, in.Kind)
	}
	if !in.Provider.Valid() {
		return nil, "", fmt.Errorf("%w: unknown provider %q", ErrValidation, in.Provider)
	}
	if !in.Amount.IsPositive() {
		return nil, "", fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if in.Currency == "" {
		return nil, "", fmt.Errorf("%w: currency is required", ErrValidation)
	}

	adapter, ok := s.adapters[in.Provider]
	if !ok {
		return nil, "", fmt.Errorf("%w: provider %s not configured", ErrValidation, in.Provider)
	}

	// MOMO references double as the provider-side reference id and must be
	// bare UUIDs; PAYLINK references are our own tx_ref format.
	var providerRef string
	switch in.Provider {
	case domain.ProviderMomo:
		providerRef = uuid.NewString()
	default:
		providerRef = "CF-" + uuid.NewString()
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Kind:          in.Kind,
		Provider:      in.Provider,
		ProviderRef:   providerRef,
		TxRef:         providerRef,
		Amount:        in.Amount,
		Currency:      in.Currency,
		CustomerEmail: in.Email,
		CustomerPhone: in.Phone,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// Persist before the provider call: if initiation times out after the
	// provider accepted it, the poll scheduler can still reconcile.
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, "", err
	}

	result, err := adapter.Initiate(ctx, gateway.InitiateRequest{
		Reference:   providerRef,
		Amount:      in.Amount,
		Currency:    in.Currency,
		Phone:       in.Phone,
		Email:       in.Email,
		RedirectURL: in.RedirectURL,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidPhone) {
			// Nothing was submitted; close the record out.
			if _, applyErr := s.engine.Apply(ctx, txn, domain.StatusFailed, nil); applyErr != nil {
				s.log.WithError(applyErr).Error("failed to close out invalid payment")
			}
			return nil, "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, "", err
	}

	if err := s.repo.MergeDetails(ctx, txn.ID, result.Raw); err != nil {
		s.log.WithError(err).Warn("failed to record initiation payload")
	}

	return txn, result.Instructions, nil
}

func (s *paymentService) ManualCheck(ctx context.Context, reference string) (domain.Status, error) {
	txn, err := s.resolver.Resolve(ctx, []string{reference})
	if errors.Is(err, resolver.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if txn.Status.Terminal() {
		return txn.Status, nil
	}

	adapter, ok := s.adapters[txn.Provider]
	if !ok {
		return txn.Status, nil
	}

	identifier := txn.ProviderTxnID
	if identifier == "" {
		identifier = txn.ProviderRef
	}

	result, err := adapter.Verify(ctx, identifier)
	if errors.Is(err, gateway.ErrTransactionNotFound) {
		// Provider has no record yet: still pending, not an error.
		return domain.StatusPending, nil
	}
	if err != nil {
		// Provider trouble is never the customer's problem; answer with
		// what we know.
		s.log.WithError(err).WithField("reference", reference).
			Warn("manual check inconclusive, returning persisted status")
		return txn.Status, nil
	}

	if _, err := s.engine.Apply(ctx, txn, result.Status, result.Raw); err != nil {
		return txn.Status, err
	}
	if result.Status.Terminal() {
		return result.Status, nil
	}
	return txn.Status, nil
}

func (s *paymentService) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrNotFound
	}
	return txn, nil
}

// momoCallback is the MOMO webhook body.
type momoCallback struct {
	ReferenceID            string `json:"referenceId"`
	ExternalID             string `json:"externalId"`
	Status                 string `json:"status"`
	FinancialTransactionID string `json:"financialTransactionId"`
}

func (s *paymentService) ProcessMomoWebhook(ctx context.Context, body []byte) error {
	var cb momoCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return fmt.Errorf("momo webhook: decode: %w", err)
	}

	txn, err := s.resolver.Resolve(ctx, []string{cb.ReferenceID, cb.ExternalID})
	if err != nil {
		return fmt.Errorf("momo webhook: %w", err)
	}

	if cb.FinancialTransactionID != "" {
		if err := s.repo.AttachRefs(ctx, txn.ID, "", "", cb.FinancialTransactionID); err != nil {
			s.log.WithError(err).Warn("failed to attach momo transaction id")
		}
	}

	_, err = s.engine.Apply(ctx, txn, gateway.MapMomoStatus(cb.Status), body)
	return err
}

// paylinkCallback is the PAYLINK webhook body.
type paylinkCallback struct {
	Event string `json:"event"`
	Data  struct {
		ID      int64  `json:"id"`
		TxRef   string `json:"tx_ref"`
		FlowRef string `json:"flow_ref"`
		Status  string `json:"status"`
	} `json:"data"`
}

func (s *paymentService) ProcessPaylinkWebhook(ctx context.Context, body []byte) error {
	var cb paylinkCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return fmt.Errorf("paylink webhook: decode: %w", err)
	}

	candidates := []string{cb.Data.TxRef, cb.Data.FlowRef}
	if cb.Data.ID != 0 {
		candidates = append(candidates, strconv.FormatInt(cb.Data.ID, 10))
	}

	txn, err := s.resolver.Resolve(ctx, candidates)
	if err != nil {
		return fmt.Errorf("paylink webhook: %w", err)
	}

	var txnID string
	if cb.Data.ID != 0 {
		txnID = strconv.FormatInt(cb.Data.ID, 10)
	}
	if cb.Data.FlowRef != "" || txnID != "" {
		if err := s.repo.AttachRefs(ctx, txn.ID, "", cb.Data.FlowRef, txnID); err != nil {
			s.log.WithError(err).Warn("failed to attach paylink refs")
		}
	}

	_, err = s.engine.Apply(ctx, txn, gateway.MapPaylinkStatus(cb.Data.Status), body)
	return err
}
