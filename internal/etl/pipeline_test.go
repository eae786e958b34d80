package etl

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendsense/backend/internal/categorize"
	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/parser"
	"github.com/spendsense/backend/internal/store"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	engine := categorize.NewEngine(categorize.NewRuleCache(st, time.Minute), categorize.ListClassifier{})
	return NewPipeline(st, engine), st
}

var csvStatement = strings.Join([]string{
	"Date,Narration,Chq/Ref Number,Withdrawal Amt.,Deposit Amt.",
	"15/01/2024,UPI-SWIGGY BANGALORE,REF001,450.00,",
	"16/01/2024,NEFT SALARY ACME SOLUTIONS PVT LTD,REF002,,85000.00",
	"Closing Balance,,,,",
}, "\n")

func TestPipelineIngestFileEndToEnd(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	batch, err := p.IngestFile(ctx, "u1", "statement.csv", []byte(csvStatement), model.BankHDFC, "")
	require.NoError(t, err)

	assert.Equal(t, model.BatchLoaded, batch.Status)
	assert.Equal(t, 2, batch.RowsParsed)
	assert.Equal(t, 1, batch.RowsSkipped)
	assert.Equal(t, 2, batch.RowsValid)
	assert.Equal(t, 0, batch.RowsInvalid)
	assert.Equal(t, 2, batch.RowsCategorized)
	assert.Equal(t, 2, batch.RowsLoaded)
	assert.Equal(t, 0, batch.RowsDeduped)
	assert.Equal(t, 2, st.FactCount())

	staged, err := st.ListStaged(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, staged, 2)

	byDesc := map[string]model.StagedTransaction{}
	for _, s := range staged {
		byDesc[s.Description] = s
	}
	assert.Equal(t, "food", byDesc["UPI-SWIGGY BANGALORE"].Category)
	assert.Equal(t, "income", byDesc["NEFT SALARY ACME SOLUTIONS PVT LTD"].Category)
}

func TestPipelineReingestionDedupes(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	first, err := p.IngestFile(ctx, "u1", "statement.csv", []byte(csvStatement), model.BankHDFC, "")
	require.NoError(t, err)
	assert.Equal(t, 2, first.RowsLoaded)

	second, err := p.IngestFile(ctx, "u1", "statement.csv", []byte(csvStatement), model.BankHDFC, "")
	require.NoError(t, err)
	assert.Equal(t, model.BatchLoaded, second.Status)
	assert.Equal(t, 0, second.RowsLoaded)
	assert.Equal(t, 2, second.RowsDeduped)
	assert.Equal(t, 2, st.FactCount())
}

func TestPipelineRuleBeatsKeyword(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	st.SeedRules([]model.Rule{{
		RuleID: "office-lunch", MatchField: model.MatchDescription, MatchType: model.MatchContains,
		MatchValue: "swiggy", PrimaryCategory: "business", SubCategory: "meals",
		Priority: 1, Active: true,
	}})

	batch, err := p.IngestFile(ctx, "u1", "statement.csv", []byte(csvStatement), model.BankHDFC, "")
	require.NoError(t, err)

	staged, err := st.ListStaged(ctx, batch.ID)
	require.NoError(t, err)
	for _, s := range staged {
		if strings.Contains(s.Description, "SWIGGY") {
			assert.Equal(t, "business", s.Category)
			assert.Equal(t, "office-lunch", s.MatchedRuleID)
			assert.Equal(t, categorize.ConfidenceRuleFull, s.CategoryConfidence)
		}
	}
}

func TestPipelineParseFailureMarksBatchFailed(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	batch, err := p.IngestFile(ctx, "u1", "statement.pdf", []byte("not a pdf"), model.BankGeneric, "")
	require.Error(t, err)
	var perr *parser.ParseError
	require.ErrorAs(t, err, &perr)

	stored, gerr := st.GetBatch(ctx, batch.ID)
	require.NoError(t, gerr)
	assert.Equal(t, model.BatchFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
}

func TestPipelineManualOverrideSurvivesRecategorize(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	batch, err := p.IngestFile(ctx, "u1", "statement.csv", []byte(csvStatement), model.BankHDFC, "")
	require.NoError(t, err)
	require.Equal(t, model.BatchLoaded, batch.Status)

	// Find the swiggy fact through its enrichment.
	staged, err := st.ListStaged(ctx, batch.ID)
	require.NoError(t, err)
	require.NotEmpty(t, staged)

	var txnID string
	for _, s := range staged {
		if strings.Contains(s.Description, "SWIGGY") {
			fp := fingerprintForStaged(s)
			sess, serr := st.BeginLoad(ctx)
			require.NoError(t, serr)
			fact, ferr := sess.FactByFingerprint(ctx, "u1", fp)
			require.NoError(t, ferr)
			require.NoError(t, sess.Commit(ctx))
			txnID = fact.TxnID
		}
	}
	require.NotEmpty(t, txnID)

	require.NoError(t, p.OverrideCategory(ctx, txnID, "business", "office_meals"))

	e, err := st.GetEnrichment(ctx, txnID)
	require.NoError(t, err)
	assert.Equal(t, "business", e.CategoryCode)
	assert.Equal(t, model.ManualConfidence, e.RuleConfidence)

	// An automated pass must not disturb the manual edit.
	require.NoError(t, p.RecategorizeFact(ctx, txnID))
	after, err := st.GetEnrichment(ctx, txnID)
	require.NoError(t, err)
	assert.Equal(t, "business", after.CategoryCode)
	assert.Equal(t, model.ManualConfidence, after.RuleConfidence)
}

func fingerprintForStaged(s model.StagedTransaction) string {
	merchantNorm := NormalizeMerchant(s.MerchantRaw)
	if merchantNorm == "" {
		merchantNorm = NormalizeMerchant(s.Description)
	}
	return model.Fingerprint(s.UserID, s.TxnDate, s.Amount, s.Direction,
		s.Description, merchantNorm, s.RawMeta["account_ref"])
}

func TestPipelineIngestEmails(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	msgs := []EmailMessage{
		{
			AccountID: "acct-1", MessageID: "m1", Subject: "HDFC Bank alert",
			Sender: "alerts@hdfcbank.net",
			Body:   "Rs. 450.00 debited at SWIGGY on 15-Jan-2024. Ref No: ABC123",
		},
		{
			AccountID: "acct-1", MessageID: "m2", Subject: "Weekly newsletter",
			Sender: "news@example.com",
			Body:   "Nothing financial in here at all.",
		},
	}

	batch, err := p.IngestEmails(ctx, "u1", msgs)
	require.NoError(t, err)
	assert.Equal(t, model.BatchLoaded, batch.Status)
	assert.Equal(t, 1, batch.RowsParsed)
	assert.Equal(t, 1, batch.RowsSkipped)
	assert.Equal(t, 1, batch.RowsLoaded)

	metas := st.EmailMetaByBatch(batch.ID)
	require.Len(t, metas, 2)
	parsedByMsg := map[string]bool{}
	for _, m := range metas {
		parsedByMsg[m.MessageID] = m.Parsed
	}
	assert.True(t, parsedByMsg["m1"])
	assert.False(t, parsedByMsg["m2"])

	staged, err := st.ListStaged(ctx, batch.ID)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, model.BankHDFC, staged[0].BankCode)
	assert.Equal(t, model.DirectionDebit, staged[0].Direction)
}

func TestPipelineValidateIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	batch, err := p.IngestFile(ctx, "u1", "statement.csv", []byte(csvStatement), model.BankHDFC, "")
	require.NoError(t, err)

	again, err := p.Validate(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.RowsValid)
	assert.Equal(t, 0, again.RowsInvalid)
	assert.Equal(t, model.BatchLoaded, again.Status, "validation does not regress status")
}

func TestPipelineCategorizeIdempotent(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	batch, err := p.IngestFile(ctx, "u1", "statement.csv", []byte(csvStatement), model.BankHDFC, "")
	require.NoError(t, err)

	again, err := p.Categorize(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, again.RowsCategorized, "recount, not double count")
	assert.Equal(t, model.BatchLoaded, again.Status)
}
