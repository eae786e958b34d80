// Package store persists batches, staged transactions, facts, enrichment,
// rules, and the category dimension. Two implementations: Postgres for
// production, in-memory for local development and tests.
package store

import (
	"context"
	"errors"

	"github.com/spendsense/backend/internal/model"
)

var (
	// ErrNotFound is returned for lookups of absent records.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateFact is returned by LoadSession.InsertFact when the
	// fingerprint uniqueness constraint rejects the row. Callers treat it
	// as a benign skip, never a failure.
	ErrDuplicateFact = errors.New("duplicate fact fingerprint")
)

// Store defines the persistence boundary used by the pipeline and the HTTP
// handlers.
type Store interface {
	// Batch operations
	CreateBatch(ctx context.Context, b *model.Batch) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	UpdateBatch(ctx context.Context, b *model.Batch) error
	ListBatches(ctx context.Context, userID string, limit, offset int) ([]*model.Batch, error)

	// Staging operations
	InsertStaged(ctx context.Context, txns []model.StagedTransaction) error
	ListStaged(ctx context.Context, batchID string) ([]model.StagedTransaction, error)
	UpdateStaged(ctx context.Context, txn *model.StagedTransaction) error

	// Rule table (read-only here; maintained by an external admin process)
	ActiveRules(ctx context.Context, bank model.BankCode) ([]model.Rule, error)

	// Fact and enrichment operations outside a load session
	GetFact(ctx context.Context, txnID string) (*model.TxnFact, error)
	GetEnrichment(ctx context.Context, txnID string) (*model.TxnEnriched, error)
	UpsertEnrichment(ctx context.Context, e *model.TxnEnriched) error

	// Email message audit trail
	InsertEmailMeta(ctx context.Context, meta *model.EmailMessageMeta) error

	// BeginLoad opens the unit of work the fact loader drives. Per-row
	// inserts inside it are savepoint-isolated.
	BeginLoad(ctx context.Context) (LoadSession, error)

	// RefreshKPIs recomputes monthly aggregates for a user. Best-effort;
	// the loader logs and ignores its error.
	RefreshKPIs(ctx context.Context, userID string) error

	Close()
}

// LoadSession is one fact-load transaction. InsertFact wraps each row in a
// nested transaction so a duplicate or a bad row rolls back alone while the
// session survives.
type LoadSession interface {
	FactByFingerprint(ctx context.Context, userID, fp string) (*model.TxnFact, error)
	EnsureCategory(ctx context.Context, code, name, bucket string) error
	InsertFact(ctx context.Context, fact *model.TxnFact, enriched *model.TxnEnriched) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
