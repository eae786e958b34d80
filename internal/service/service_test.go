package service

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/backend/internal/categorize"
	"github.com/spendsense/backend/internal/etl"
	"github.com/spendsense/backend/internal/jobs"
	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/store"
)

const sampleCSV = `Date,Narration,Chq/Ref Number,Withdrawal Amt.,Deposit Amt.
15/01/2024,UPI-SWIGGY BANGALORE,REF001,450.00,
16/01/2024,NEFT SALARY ACME SOLUTIONS PVT LTD,REF002,,85000.00
`

func newTestService(t *testing.T, publisher jobs.Publisher) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	engine := categorize.NewEngine(categorize.NewRuleCache(st, time.Minute), categorize.ListClassifier{})
	return NewService(st, etl.NewPipeline(st, engine), publisher), st
}

func multipartUpload(t *testing.T, filename, bankCode string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	if bankCode != "" {
		require.NoError(t, mw.WriteField("bank_code", bankCode))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestUploadStatementSynchronous(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := svc.Router()

	body, contentType := multipartUpload(t, "statement.csv", "HDFC", []byte(sampleCSV))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "statement processed", resp.Message)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var view BatchView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, "loaded", string(view.Status))
	assert.Equal(t, 2, view.RowsLoaded)
}

func TestUploadStatementRequiresUser(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := svc.Router()

	body, contentType := multipartUpload(t, "statement.csv", "", []byte(sampleCSV))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadStatementUnsupportedFormat(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := svc.Router()

	body, contentType := multipartUpload(t, "statement.docx", "", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestUploadStatementQueued(t *testing.T) {
	q := jobs.NewQueue(4, 1)
	defer q.Close()

	svc, _ := newTestService(t, q)
	router := svc.Router()

	body, contentType := multipartUpload(t, "statement.csv", "HDFC", []byte(sampleCSV))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, "accepted", resp.Status)
	assert.Contains(t, resp.Message, "background")
}

func TestUploadFallsBackWhenQueueClosed(t *testing.T) {
	q := jobs.NewQueue(4, 1)
	require.NoError(t, q.Close())

	svc, st := newTestService(t, q)
	router := svc.Router()

	body, contentType := multipartUpload(t, "statement.csv", "HDFC", []byte(sampleCSV))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Transparent synchronous fallback, not a 5xx.
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeResponse(t, rec)
	assert.Equal(t, "statement processed", resp.Message)
	assert.Equal(t, 2, st.FactCount())
}

func TestQueuedJobRunsPipeline(t *testing.T) {
	q := jobs.NewQueue(4, 1)
	defer q.Close()

	svc, st := newTestService(t, q)
	require.NoError(t, q.Start(context.Background(), svc.HandleIngestJob))

	router := svc.Router()
	body, contentType := multipartUpload(t, "statement.csv", "HDFC", []byte(sampleCSV))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	assert.Eventually(t, func() bool {
		return st.FactCount() == 2
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBatchEndpoints(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := svc.Router()

	body, contentType := multipartUpload(t, "statement.csv", "HDFC", []byte(sampleCSV))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// List batches.
	req = httptest.NewRequest(http.MethodGet, "/v1/batches", nil)
	req.Header.Set(userIDHeader, "u1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var views []BatchView
	require.NoError(t, json.Unmarshal(data, &views))
	require.Len(t, views, 1)
	batchID := views[0].ID

	// Fetch one batch.
	req = httptest.NewRequest(http.MethodGet, "/v1/batches/"+batchID, nil)
	req.Header.Set(userIDHeader, "u1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Another user cannot see it.
	req = httptest.NewRequest(http.MethodGet, "/v1/batches/"+batchID, nil)
	req.Header.Set(userIDHeader, "u2")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Transactions of the batch.
	req = httptest.NewRequest(http.MethodGet, "/v1/batches/"+batchID+"/transactions", nil)
	req.Header.Set(userIDHeader, "u1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp = decodeResponse(t, rec)
	data, err = json.Marshal(resp.Data)
	require.NoError(t, err)
	var txns []TransactionView
	require.NoError(t, json.Unmarshal(data, &txns))
	require.Len(t, txns, 2)
	for _, txn := range txns {
		assert.True(t, txn.Valid)
		assert.NotEmpty(t, txn.Category)
	}
}

func TestSweepEmails(t *testing.T) {
	svc, st := newTestService(t, nil)
	router := svc.Router()

	payload := `{"messages":[{"account_id":"a1","message_id":"m1","subject":"HDFC Bank alert","sender":"alerts@hdfcbank.net","body":"Rs. 450.00 debited at SWIGGY on 15-Jan-2024"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/emails/sweep", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, st.FactCount())
}

func TestSweepEmailsFallsBackWhenQueueClosed(t *testing.T) {
	q := jobs.NewQueue(4, 1)
	require.NoError(t, q.Close())

	svc, st := newTestService(t, q)
	router := svc.Router()

	payload := `{"messages":[{"account_id":"a1","message_id":"m1","subject":"HDFC Bank alert","sender":"alerts@hdfcbank.net","body":"Rs. 450.00 debited at SWIGGY on 15-Jan-2024"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/emails/sweep", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Transparent synchronous fallback, not a 5xx.
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, st.FactCount())
}

func TestSweepEmailsEmptyBody(t *testing.T) {
	svc, _ := newTestService(t, nil)
	router := svc.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/emails/sweep", strings.NewReader(`{"messages":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOverrideCategory(t *testing.T) {
	svc, st := newTestService(t, nil)
	router := svc.Router()

	body, contentType := multipartUpload(t, "statement.csv", "HDFC", []byte(sampleCSV))
	req := httptest.NewRequest(http.MethodPost, "/v1/statements", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(userIDHeader, "u1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	txnID := firstFactID(t, st)

	req = httptest.NewRequest(http.MethodPut, "/v1/transactions/"+txnID+"/category",
		strings.NewReader(`{"category":"business","subcategory":"meals"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, "u1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	e, err := st.GetEnrichment(context.Background(), txnID)
	require.NoError(t, err)
	assert.Equal(t, "business", e.CategoryCode)

	// Wrong user gets a 404, not a forbidden leak.
	req = httptest.NewRequest(http.MethodPut, "/v1/transactions/"+txnID+"/category",
		strings.NewReader(`{"category":"food"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(userIDHeader, "u2")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func firstFactID(t *testing.T, st *store.MemoryStore) string {
	t.Helper()
	batches, err := st.ListBatches(context.Background(), "u1", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, batches)

	staged, err := st.ListStaged(context.Background(), batches[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, staged)

	sess, err := st.BeginLoad(context.Background())
	require.NoError(t, err)
	defer sess.Commit(context.Background())

	for _, s := range staged {
		merchant := etl.NormalizeMerchant(s.MerchantRaw)
		if merchant == "" {
			merchant = etl.NormalizeMerchant(s.Description)
		}
		fp := modelFingerprint(s, merchant)
		fact, ferr := sess.FactByFingerprint(context.Background(), s.UserID, fp)
		if ferr == nil {
			return fact.TxnID
		}
	}
	t.Fatal("no loaded fact found")
	return ""
}

func modelFingerprint(s model.StagedTransaction, merchantNorm string) string {
	return model.Fingerprint(s.UserID, s.TxnDate, s.Amount, s.Direction,
		s.Description, merchantNorm, s.RawMeta["account_ref"])
}
