package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/store"
)

// BatchView is the JSON shape of a batch.
type BatchView struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	SourceType string            `json:"source_type"`
	SourceName string            `json:"source_name"`
	BankCode   model.BankCode    `json:"bank_code"`
	Status     model.BatchStatus `json:"status"`

	RowsParsed      int `json:"rows_parsed"`
	RowsSkipped     int `json:"rows_skipped"`
	RowsValid       int `json:"rows_valid"`
	RowsInvalid     int `json:"rows_invalid"`
	RowsCategorized int `json:"rows_categorized"`
	RowsLoaded      int `json:"rows_loaded"`
	RowsDeduped     int `json:"rows_deduped"`

	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func batchView(b *model.Batch) BatchView {
	return BatchView{
		ID:         b.ID,
		UserID:     b.UserID,
		SourceType: b.SourceType,
		SourceName: b.SourceName,
		BankCode:   b.BankCode,
		Status:     b.Status,

		RowsParsed:      b.RowsParsed,
		RowsSkipped:     b.RowsSkipped,
		RowsValid:       b.RowsValid,
		RowsInvalid:     b.RowsInvalid,
		RowsCategorized: b.RowsCategorized,
		RowsLoaded:      b.RowsLoaded,
		RowsDeduped:     b.RowsDeduped,

		Error:     b.Error,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// TransactionView is the JSON shape of a staged transaction.
type TransactionView struct {
	ID          string          `json:"id"`
	TxnDate     string          `json:"txn_date"`
	Amount      string          `json:"amount"`
	Direction   model.Direction `json:"direction"`
	Description string          `json:"description"`
	Merchant    string          `json:"merchant,omitempty"`
	ReferenceID string          `json:"reference_id,omitempty"`
	BankCode    model.BankCode  `json:"bank_code"`
	Channel     model.Channel   `json:"channel"`

	Category           string  `json:"category,omitempty"`
	Subcategory        string  `json:"subcategory,omitempty"`
	CategoryConfidence float64 `json:"category_confidence"`
	Valid              bool    `json:"valid"`
}

func transactionView(t model.StagedTransaction) TransactionView {
	return TransactionView{
		ID:          t.ID,
		TxnDate:     t.TxnDate.Format("2006-01-02"),
		Amount:      t.Amount.StringFixed(2),
		Direction:   t.Direction,
		Description: t.Description,
		Merchant:    t.MerchantRaw,
		ReferenceID: t.ReferenceID,
		BankCode:    t.BankCode,
		Channel:     t.Channel,

		Category:           t.Category,
		Subcategory:        t.Subcategory,
		CategoryConfidence: t.CategoryConfidence,
		Valid:              t.ParsedOK,
	}
}

// batchForUser loads a batch and enforces ownership. Batches of other users
// read as not found.
func (s *Service) batchForUser(w http.ResponseWriter, r *http.Request) (*model.Batch, bool) {
	uid, ok := userID(w, r)
	if !ok {
		return nil, false
	}
	id := mux.Vars(r)["id"]
	batch, err := s.store.GetBatch(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading batch failed")
		return nil, false
	}
	if batch.UserID != uid {
		writeError(w, http.StatusNotFound, "batch not found")
		return nil, false
	}
	return batch, true
}

// GetBatch returns one batch with its counts.
func (s *Service) GetBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.batchForUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Data: batchView(batch)})
}

// ListBatches returns the caller's batches, newest first.
func (s *Service) ListBatches(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	batches, err := s.store.ListBatches(r.Context(), uid, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing batches failed")
		return
	}
	views := make([]BatchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, batchView(b))
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Data: views})
}

// ListBatchTransactions returns a batch's staged rows.
func (s *Service) ListBatchTransactions(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.batchForUser(w, r)
	if !ok {
		return
	}
	staged, err := s.store.ListStaged(r.Context(), batch.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing transactions failed")
		return
	}
	views := make([]TransactionView, 0, len(staged))
	for _, t := range staged {
		views = append(views, transactionView(t))
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Data: views})
}

// RevalidateBatch re-runs structural validation for a batch.
func (s *Service) RevalidateBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.batchForUser(w, r)
	if !ok {
		return
	}
	updated, err := s.pipeline.Validate(r.Context(), batch.ID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Data: batchView(updated)})
}

// RecategorizeBatch re-runs the rule engine over a batch's staged rows.
func (s *Service) RecategorizeBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.batchForUser(w, r)
	if !ok {
		return
	}
	updated, err := s.pipeline.Categorize(r.Context(), batch.ID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Data: batchView(updated)})
}

// ReloadBatch re-runs the fact load for a batch. Previously loaded rows
// dedupe instead of double-inserting.
func (s *Service) ReloadBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := s.batchForUser(w, r)
	if !ok {
		return
	}
	updated, err := s.pipeline.Load(r.Context(), batch.ID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Data: batchView(updated)})
}

// overrideRequest is the body of a manual category edit.
type overrideRequest struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// OverrideCategory applies a manual category edit to a loaded transaction.
func (s *Service) OverrideCategory(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	txnID := mux.Vars(r)["id"]

	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}

	fact, err := s.store.GetFact(r.Context(), txnID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading transaction failed")
		return
	}
	if fact.UserID != uid {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	if err := s.pipeline.OverrideCategory(r.Context(), txnID, req.Category, req.Subcategory); err != nil {
		writeError(w, http.StatusInternalServerError, "applying category edit failed")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Message: "category updated"})
}

// RecategorizeTransaction re-runs the engine for one loaded transaction.
// Manual edits are never overwritten.
func (s *Service) RecategorizeTransaction(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	txnID := mux.Vars(r)["id"]

	fact, err := s.store.GetFact(r.Context(), txnID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "loading transaction failed")
		return
	}
	if fact.UserID != uid {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}

	if err := s.pipeline.RecategorizeFact(r.Context(), txnID); err != nil {
		writeError(w, http.StatusInternalServerError, "recategorization failed")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Status: "ok", Message: "recategorized"})
}
