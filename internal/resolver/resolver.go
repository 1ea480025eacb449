// Package resolver locates the one internal transaction a provider callback
// refers to. The callback shapes never agree on which field carries the
// correlating id, so resolution fans out across every identifier column.
package resolver

import (
	"context"
	"errors"

	"cardflow/internal/domain"
)

var (
	ErrNotFound = errors.New("resolver: no transaction matches")
	// ErrAmbiguousReference means two supplied identifiers resolved to
	// different records. That should be impossible under correct provider
	// behavior, so resolution fails closed rather than picking one.
	ErrAmbiguousReference = errors.New("resolver: identifiers resolve to different transactions")
)

// Lookup is the slice of the repository the resolver needs.
type Lookup interface {
	FindByRef(ctx context.Context, ref string) (*domain.Transaction, error)
}

type Resolver struct {
	lookup Lookup
}

func New(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolve tries every candidate identifier and returns the single matching
// transaction. Empty candidates are skipped.
func (r *Resolver) Resolve(ctx context.Context, candidates []string) (*domain.Transaction, error) {
	var found *domain.Transaction

	for _, ref := range candidates {
		if ref == "" {
			continue
		}
		txn, err := r.lookup.FindByRef(ctx, ref)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			continue
		}
		if found != nil && found.ID != txn.ID {
			return nil, ErrAmbiguousReference
		}
		if found == nil {
			found = txn
		}
	}

	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}
