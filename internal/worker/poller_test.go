package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardflow/internal/domain"
	"cardflow/internal/engine"
	"cardflow/internal/gateway"
	"cardflow/internal/worker"
)

type fakeRepo struct {
	mu      sync.Mutex
	pending []domain.Transaction
	listErr error
}

func (f *fakeRepo) ListPending(_ context.Context, _ time.Duration, _ int) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Transaction, len(f.pending))
	copy(out, f.pending)
	return out, nil
}

func (f *fakeRepo) Create(context.Context, *domain.Transaction) error { return nil }
func (f *fakeRepo) FindByID(context.Context, uuid.UUID) (*domain.Transaction, error) {
	return nil, nil
}
func (f *fakeRepo) FindByRef(context.Context, string) (*domain.Transaction, error) {
	return nil, nil
}
func (f *fakeRepo) AttachRefs(context.Context, uuid.UUID, string, string, string) error {
	return nil
}
func (f *fakeRepo) TransitionStatus(context.Context, uuid.UUID, domain.Status, []byte) (bool, error) {
	return false, nil
}
func (f *fakeRepo) MergeDetails(context.Context, uuid.UUID, []byte) error { return nil }

type fakeAdapter struct {
	mu       sync.Mutex
	results  map[string]*gateway.VerifyResult
	errs     map[string]error
	verified []string
	block    chan struct{} // when set, Verify waits until closed
}

func (f *fakeAdapter) Provider() domain.Provider { return domain.ProviderMomo }

func (f *fakeAdapter) Initiate(context.Context, gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) Verify(_ context.Context, id string) (*gateway.VerifyResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.verified = append(f.verified, id)
	f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if res, ok := f.results[id]; ok {
		return res, nil
	}
	return nil, gateway.ErrTransactionNotFound
}

type fakeApplier struct {
	mu      sync.Mutex
	applied []appliedCall
}

type appliedCall struct {
	ref    string
	status domain.Status
}

func (f *fakeApplier) Apply(_ context.Context, txn *domain.Transaction, status domain.Status, _ []byte) (engine.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, appliedCall{ref: txn.ProviderRef, status: status})
	return engine.OutcomeSucceeded, nil
}

func pendingTxn(ref string) domain.Transaction {
	return domain.Transaction{
		ID:          uuid.New(),
		Provider:    domain.ProviderMomo,
		ProviderRef: ref,
		Status:      domain.StatusPending,
		CreatedAt:   time.Now(),
	}
}

func newPoller(r *fakeRepo, a *fakeAdapter, app *fakeApplier) *worker.Poller {
	return worker.NewPoller(r,
		map[domain.Provider]gateway.Adapter{domain.ProviderMomo: a},
		app,
		time.Hour, 24*time.Hour, time.Millisecond, 100)
}

func TestSweep_AppliesVerifiedStatus(t *testing.T) {
	repo := &fakeRepo{pending: []domain.Transaction{pendingTxn("ref-1"), pendingTxn("ref-2")}}
	adapter := &fakeAdapter{results: map[string]*gateway.VerifyResult{
		"ref-1": {Reference: "ref-1", Status: domain.StatusSuccessful, Raw: []byte(`{}`)},
		"ref-2": {Reference: "ref-2", Status: domain.StatusFailed, Raw: []byte(`{}`)},
	}}
	applier := &fakeApplier{}

	ran := newPoller(repo, adapter, applier).Sweep(context.Background())

	require.True(t, ran)
	require.Len(t, applier.applied, 2)
	assert.Equal(t, appliedCall{ref: "ref-1", status: domain.StatusSuccessful}, applier.applied[0])
	assert.Equal(t, appliedCall{ref: "ref-2", status: domain.StatusFailed}, applier.applied[1])
}

// A provider 404 means "not seen yet": the transaction is left PENDING for
// the next sweep, it is never failed.
func TestSweep_NotFoundStaysPending(t *testing.T) {
	repo := &fakeRepo{pending: []domain.Transaction{pendingTxn("ghost")}}
	adapter := &fakeAdapter{}
	applier := &fakeApplier{}

	newPoller(repo, adapter, applier).Sweep(context.Background())

	assert.Equal(t, []string{"ghost"}, adapter.verified)
	assert.Empty(t, applier.applied)
}

func TestSweep_VerifyErrorSkipsItem(t *testing.T) {
	repo := &fakeRepo{pending: []domain.Transaction{pendingTxn("broken"), pendingTxn("fine")}}
	adapter := &fakeAdapter{
		errs: map[string]error{"broken": gateway.ErrUnavailable},
		results: map[string]*gateway.VerifyResult{
			"fine": {Reference: "fine", Status: domain.StatusSuccessful, Raw: []byte(`{}`)},
		},
	}
	applier := &fakeApplier{}

	newPoller(repo, adapter, applier).Sweep(context.Background())

	require.Len(t, applier.applied, 1, "the broken item is skipped, the rest still runs")
	assert.Equal(t, "fine", applier.applied[0].ref)
}

func TestSweep_OverlapGuard(t *testing.T) {
	block := make(chan struct{})
	repo := &fakeRepo{pending: []domain.Transaction{pendingTxn("slow")}}
	adapter := &fakeAdapter{block: block}
	applier := &fakeApplier{}
	p := newPoller(repo, adapter, applier)

	started := make(chan struct{})
	done := make(chan bool)
	go func() {
		close(started)
		done <- p.Sweep(context.Background())
	}()
	<-started
	// Give the first sweep time to grab the guard and block in Verify.
	time.Sleep(50 * time.Millisecond)

	assert.False(t, p.Sweep(context.Background()), "second sweep must refuse to overlap")

	close(block)
	assert.True(t, <-done)

	assert.True(t, p.Sweep(context.Background()), "guard is released after the sweep finishes")
}

func TestSweep_ListErrorDoesNotPanic(t *testing.T) {
	repo := &fakeRepo{listErr: errors.New("db down")}
	p := newPoller(repo, &fakeAdapter{}, &fakeApplier{})

	assert.True(t, p.Sweep(context.Background()))
}
