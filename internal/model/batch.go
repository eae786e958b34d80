package model

import (
	"fmt"
	"time"
)

// BatchStatus is the lifecycle state of an ingest batch.
type BatchStatus string

const (
	BatchPending     BatchStatus = "pending"
	BatchParsed      BatchStatus = "parsed"
	BatchCategorized BatchStatus = "categorized"
	BatchLoaded      BatchStatus = "loaded"
	BatchFailed      BatchStatus = "failed"
)

// batchTransitions is the forward path. Failed is reachable from any
// non-terminal state and is handled separately in CanTransition.
var batchTransitions = map[BatchStatus]BatchStatus{
	BatchPending:     BatchParsed,
	BatchParsed:      BatchCategorized,
	BatchCategorized: BatchLoaded,
}

// CanTransition reports whether a batch may move from one status to another.
// The only legal moves are the forward chain pending → parsed → categorized
// → loaded, and a jump to failed from any state that is not already terminal.
func CanTransition(from, to BatchStatus) bool {
	if from == BatchLoaded || from == BatchFailed {
		return false
	}
	if to == BatchFailed {
		return true
	}
	return batchTransitions[from] == to
}

// Batch tracks one ingest run: a single uploaded file or one email sweep.
type Batch struct {
	ID         string
	UserID     string
	SourceType string // csv | excel | pdf | email
	SourceName string
	BankCode   BankCode
	Status     BatchStatus

	RowsParsed      int
	RowsSkipped     int
	RowsValid       int
	RowsInvalid     int
	RowsCategorized int
	RowsLoaded      int
	RowsDeduped     int

	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Advance moves the batch to the next status, enforcing the state machine.
func (b *Batch) Advance(to BatchStatus) error {
	if !CanTransition(b.Status, to) {
		return fmt.Errorf("illegal batch transition %s -> %s (batch %s)", b.Status, to, b.ID)
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	return nil
}

// Fail marks the batch failed with a reason. Failing a terminal batch is a
// no-op error so callers can report it without corrupting state.
func (b *Batch) Fail(reason string) error {
	if err := b.Advance(BatchFailed); err != nil {
		return err
	}
	b.Error = reason
	return nil
}
