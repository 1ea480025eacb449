package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardflow/internal/domain"
	"cardflow/internal/engine"
)

// fakeStore mimics the repository's conditional transition: the first
// terminal write wins, every later one reports false.
type fakeStore struct {
	mu          sync.Mutex
	status      domain.Status
	transitions int
	merges      int
	failWith    error
}

func (s *fakeStore) TransitionStatus(_ context.Context, _ uuid.UUID, status domain.Status, _ []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	if s.status != domain.StatusPending {
		return false, nil
	}
	s.status = status
	s.transitions++
	return true, nil
}

func (s *fakeStore) MergeDetails(_ context.Context, _ uuid.UUID, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges++
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.TransactionSucceeded
	err    error
}

func (n *fakeNotifier) TransactionSucceeded(_ context.Context, event domain.TransactionSucceeded) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func pendingTxn() *domain.Transaction {
	return &domain.Transaction{
		ID:          uuid.New(),
		Kind:        domain.KindCardPurchase,
		Provider:    domain.ProviderMomo,
		ProviderRef: "abc",
		Amount:      decimal.NewFromInt(50),
		Currency:    "GHS",
		Status:      domain.StatusPending,
	}
}

func TestApply_PendingToSuccessful(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending}
	notifier := &fakeNotifier{}
	eng := engine.New(store, notifier)

	outcome, err := eng.Apply(context.Background(), pendingTxn(), domain.StatusSuccessful, []byte(`{"status":"successful"}`))

	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSucceeded, outcome)
	assert.Equal(t, domain.StatusSuccessful, store.status)
	assert.Len(t, notifier.events, 1)
}

func TestApply_PendingToFailed_NoNotification(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending}
	notifier := &fakeNotifier{}
	eng := engine.New(store, notifier)

	outcome, err := eng.Apply(context.Background(), pendingTxn(), domain.StatusFailed, nil)

	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeFailed, outcome)
	assert.Equal(t, domain.StatusFailed, store.status)
	assert.Empty(t, notifier.events)
}

func TestApply_TerminalIsIdempotent(t *testing.T) {
	for _, terminal := range []domain.Status{domain.StatusSuccessful, domain.StatusFailed} {
		store := &fakeStore{status: terminal}
		notifier := &fakeNotifier{}
		eng := engine.New(store, notifier)

		txn := pendingTxn()
		txn.Status = terminal

		for _, incoming := range []domain.Status{domain.StatusSuccessful, domain.StatusFailed, domain.StatusPending} {
			outcome, err := eng.Apply(context.Background(), txn, incoming, []byte(`{"retry":true}`))
			require.NoError(t, err)
			assert.Equal(t, engine.OutcomeAlreadyFinal, outcome)
		}

		assert.Equal(t, terminal, store.status, "terminal status must never change")
		assert.Zero(t, store.transitions)
		assert.Empty(t, notifier.events)
		assert.Equal(t, 3, store.merges, "payloads still merge for the audit trail")
	}
}

func TestApply_PendingIncomingMergesOnly(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending}
	notifier := &fakeNotifier{}
	eng := engine.New(store, notifier)

	outcome, err := eng.Apply(context.Background(), pendingTxn(), domain.StatusPending, []byte(`{"status":"ongoing"}`))

	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeNoChange, outcome)
	assert.Equal(t, domain.StatusPending, store.status)
	assert.Equal(t, 1, store.merges)
	assert.Zero(t, store.transitions)
}

// Webhook lands first, then the poll sweep re-confirms: the second apply
// must not fire a second notification.
func TestApply_RepeatedSuccessNotifiesOnce(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending}
	notifier := &fakeNotifier{}
	eng := engine.New(store, notifier)

	txn := pendingTxn()

	outcome, err := eng.Apply(context.Background(), txn, domain.StatusSuccessful, []byte(`{"via":"webhook"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSucceeded, outcome)

	// The poll sweep re-reads the record and sees the terminal status.
	txn.Status = domain.StatusSuccessful
	outcome, err = eng.Apply(context.Background(), txn, domain.StatusSuccessful, []byte(`{"via":"poll"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeAlreadyFinal, outcome)

	assert.Len(t, notifier.events, 1, "exactly one notification across repeated confirmations")
	assert.Equal(t, 1, store.transitions)
}

// Two racing triggers read PENDING and both attempt a transition; the
// conditional write lets exactly one commit. The loser may even carry a
// different terminal outcome (out-of-order provider retries).
func TestApply_ConcurrentConflictingTriggers(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending}
	notifier := &fakeNotifier{}
	eng := engine.New(store, notifier)

	// Both callers observed PENDING before either wrote.
	webhookView := pendingTxn()
	pollView := *webhookView
	pollView.Status = domain.StatusPending

	first, err := eng.Apply(context.Background(), webhookView, domain.StatusSuccessful, []byte(`{"via":"webhook"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSucceeded, first)

	second, err := eng.Apply(context.Background(), &pollView, domain.StatusFailed, []byte(`{"via":"poll"}`))
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeAlreadyFinal, second, "loser must see a no-op, not overwrite")

	assert.Equal(t, domain.StatusSuccessful, store.status, "first committed transition stands")
	assert.Equal(t, 1, store.transitions)
	assert.Len(t, notifier.events, 1)
}

func TestApply_ConcurrentSuccessDeliveries(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending}
	notifier := &fakeNotifier{}
	eng := engine.New(store, notifier)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			txn := pendingTxn()
			_, err := eng.Apply(context.Background(), txn, domain.StatusSuccessful, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.transitions)
	assert.Len(t, notifier.events, 1, "notification fires exactly once under concurrent delivery")
}

func TestApply_NotifierFailureDoesNotUndoTransition(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending}
	notifier := &fakeNotifier{err: errors.New("broker down")}
	eng := engine.New(store, notifier)

	outcome, err := eng.Apply(context.Background(), pendingTxn(), domain.StatusSuccessful, nil)

	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSucceeded, outcome)
	assert.Equal(t, domain.StatusSuccessful, store.status)
}

func TestApply_StoreErrorPropagates(t *testing.T) {
	store := &fakeStore{status: domain.StatusPending, failWith: errors.New("db gone")}
	eng := engine.New(store, &fakeNotifier{})

	_, err := eng.Apply(context.Background(), pendingTxn(), domain.StatusSuccessful, nil)
	assert.Error(t, err)
}
