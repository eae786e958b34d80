// Package service exposes the ingest pipeline over HTTP: statement upload,
// email sweep, batch inspection, stage re-triggers, and manual category
// edits.
package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/spendsense/backend/internal/etl"
	"github.com/spendsense/backend/internal/jobs"
	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/parser"
	"github.com/spendsense/backend/internal/store"
)

// userIDHeader carries the caller identity. A gateway in front of this
// service is expected to authenticate and set it.
const userIDHeader = "X-User-ID"

// Service wires the store, the pipeline, and an optional job queue behind
// the HTTP handlers. With a nil publisher every ingest runs synchronously.
type Service struct {
	store     store.Store
	pipeline  *etl.Pipeline
	publisher jobs.Publisher
}

// NewService builds the HTTP service. publisher may be nil.
func NewService(st store.Store, pipeline *etl.Pipeline, publisher jobs.Publisher) *Service {
	return &Service{store: st, pipeline: pipeline, publisher: publisher}
}

// Router builds the route table.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter().StrictSlash(true)

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/statements", s.UploadStatement).Methods(http.MethodPost)
	v1.HandleFunc("/emails/sweep", s.SweepEmails).Methods(http.MethodPost)
	v1.HandleFunc("/batches", s.ListBatches).Methods(http.MethodGet)
	v1.HandleFunc("/batches/{id}", s.GetBatch).Methods(http.MethodGet)
	v1.HandleFunc("/batches/{id}/transactions", s.ListBatchTransactions).Methods(http.MethodGet)
	v1.HandleFunc("/batches/{id}/validate", s.RevalidateBatch).Methods(http.MethodPost)
	v1.HandleFunc("/batches/{id}/categorize", s.RecategorizeBatch).Methods(http.MethodPost)
	v1.HandleFunc("/batches/{id}/load", s.ReloadBatch).Methods(http.MethodPost)
	v1.HandleFunc("/transactions/{id}/category", s.OverrideCategory).Methods(http.MethodPut)
	v1.HandleFunc("/transactions/{id}/recategorize", s.RecategorizeTransaction).Methods(http.MethodPost)

	return r
}

// APIResponse is the uniform JSON envelope.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, APIResponse{Status: "error", Message: msg})
}

// userID extracts the caller identity, writing a 401 when absent.
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(userIDHeader)
	if id == "" {
		writeError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header")
		return "", false
	}
	return id, true
}

// writeParseFailure maps a parse error to a client-visible response. The
// password codes surface their exact messages so the client can prompt.
func writeParseFailure(w http.ResponseWriter, err error) {
	var perr *parser.ParseError
	if errors.As(err, &perr) {
		switch perr.Code {
		case parser.ErrPDFPasswordRequired, parser.ErrPDFPasswordIncorrect:
			writeError(w, http.StatusBadRequest, perr.Message)
		case parser.ErrUnsupportedFormat:
			writeError(w, http.StatusUnsupportedMediaType, perr.Message)
		case parser.ErrEmptyFile, parser.ErrUnreadableFile, parser.ErrNoColumnMapping:
			writeError(w, http.StatusUnprocessableEntity, perr.Message)
		default:
			writeError(w, http.StatusUnprocessableEntity, perr.Message)
		}
		return
	}
	writeError(w, http.StatusInternalServerError, "ingest failed")
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// parseBankHint normalizes the client-supplied bank code. Unknown values
// fall back to GENERIC so the letterhead sniffer gets a chance.
func parseBankHint(v string) model.BankCode {
	switch model.BankCode(strings.ToUpper(strings.TrimSpace(v))) {
	case model.BankHDFC:
		return model.BankHDFC
	case model.BankICICI:
		return model.BankICICI
	case model.BankSBI:
		return model.BankSBI
	case model.BankAxis:
		return model.BankAxis
	default:
		return model.BankGeneric
	}
}
