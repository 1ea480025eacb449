package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"cardflow/internal/domain"
)

type TransactionRepo interface {
	Create(ctx context.Context, txn *domain.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// FindByRef matches ref against every external identifier column.
	// Returns (nil, nil) when nothing matches.
	FindByRef(ctx context.Context, ref string) (*domain.Transaction, error)
	// AttachRefs records additional provider-issued identifiers as they
	// show up in callbacks. Empty arguments leave the column untouched.
	AttachRefs(ctx context.Context, id uuid.UUID, txRef, flowRef, providerTxnID string) error
	// TransitionStatus commits a terminal status iff the row is still
	// PENDING, merging details and bumping updated_at in the same
	// statement. Returns false when another trigger already won.
	TransitionStatus(ctx context.Context, id uuid.UUID, status domain.Status, details []byte) (bool, error)
	// MergeDetails folds a raw provider payload into payment_details
	// without touching status or updated_at.
	MergeDetails(ctx context.Context, id uuid.UUID, details []byte) error
	// ListPending returns PENDING transactions created inside the lookback
	// window, oldest first.
	ListPending(ctx context.Context, lookback time.Duration, limit int) ([]domain.Transaction, error)
}

type transactionRepo struct {
	db *sql.DB
}

func NewTransactionRepo(db *sql.DB) TransactionRepo {
	return &transactionRepo{db: db}
}

const transactionColumns = `id, kind, provider, provider_ref, tx_ref, flow_ref, provider_txn_id,
	amount, currency, customer_email, customer_phone, status, payment_details, created_at, updated_at`

func (r *transactionRepo) Create(ctx context.Context, txn *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	details := txn.PaymentDetails
	if len(details) == 0 {
		details = []byte(`{}`)
	}

	_, err := r.db.ExecContext(ctx, query,
		txn.ID, txn.Kind, txn.Provider,
		txn.ProviderRef, txn.TxRef, txn.FlowRef, txn.ProviderTxnID,
		txn.Amount, txn.Currency, txn.CustomerEmail, txn.CustomerPhone,
		txn.Status, details, txn.CreatedAt, txn.UpdatedAt,
	)
	return err
}

func (r *transactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransaction(row)
}

func (r *transactionRepo) FindByRef(ctx context.Context, ref string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE provider_ref = $1 OR tx_ref = $1 OR flow_ref = $1 OR provider_txn_id = $1
		 LIMIT 1`, ref)
	return scanTransaction(row)
}

func (r *transactionRepo) AttachRefs(ctx context.Context, id uuid.UUID, txRef, flowRef, providerTxnID string) error {
	query := `
		UPDATE transactions
		SET tx_ref          = CASE WHEN $2 <> '' THEN $2 ELSE tx_ref END,
		    flow_ref        = CASE WHEN $3 <> '' THEN $3 ELSE flow_ref END,
		    provider_txn_id = CASE WHEN $4 <> '' THEN $4 ELSE provider_txn_id END
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, txRef, flowRef, providerTxnID)
	return err
}

func (r *transactionRepo) TransitionStatus(ctx context.Context, id uuid.UUID, status domain.Status, details []byte) (bool, error) {
	if len(details) == 0 {
		details = []byte(`{}`)
	}
	query := `
		UPDATE transactions
		SET status = $2,
		    payment_details = payment_details || $3::jsonb,
		    updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`
	res, err := r.db.ExecContext(ctx, query, id, status, string(details))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *transactionRepo) MergeDetails(ctx context.Context, id uuid.UUID, details []byte) error {
	if len(details) == 0 {
		return nil
	}
	query := `
		UPDATE transactions
		SET payment_details = payment_details || $2::jsonb
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, string(details))
	return err
}

func (r *transactionRepo) ListPending(ctx context.Context, lookback time.Duration, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'PENDING' AND created_at > $1
		ORDER BY created_at ASC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, time.Now().Add(-lookback), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := scanInto(rows, &t); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInto(s scanner, t *domain.Transaction) error {
	return s.Scan(
		&t.ID, &t.Kind, &t.Provider,
		&t.ProviderRef, &t.TxRef, &t.FlowRef, &t.ProviderTxnID,
		&t.Amount, &t.Currency, &t.CustomerEmail, &t.CustomerPhone,
		&t.Status, &t.PaymentDetails, &t.CreatedAt, &t.UpdatedAt,
	)
}

func scanTransaction(row *sql.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := scanInto(row, &t)
	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
