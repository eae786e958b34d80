package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/spendsense/backend/internal/logger"
	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/store"
)

// categoryBuckets assigns a budgeting bucket when the loader has to create a
// missing category dimension row.
var categoryBuckets = map[string]string{
	"groceries":     "needs",
	"utilities":     "needs",
	"fuel":          "needs",
	"housing":       "needs",
	"insurance":     "needs",
	"loans":         "needs",
	"cash":          "needs",
	"food":          "wants",
	"entertainment": "wants",
	"shopping":      "wants",
	"travel":        "wants",
	"investments":   "assets",
	"transfers":     "assets",
	"income":        "income",
}

const defaultBucket = "wants"

func bucketFor(code string) string {
	if b, ok := categoryBuckets[code]; ok {
		return b
	}
	return defaultBucket
}

// LoadResult reports the fact loader's per-batch outcome.
type LoadResult struct {
	Inserted int
	Deduped  int
	Failed   int
}

// Loader moves validated staged rows into the fact table, deduplicating by
// content fingerprint. Each row is savepoint-isolated: a duplicate or a bad
// row never takes the batch down with it.
type Loader struct {
	store store.Store
}

// NewLoader builds a loader over the given store.
func NewLoader(st store.Store) *Loader {
	return &Loader{store: st}
}

// Load inserts all valid rows of a batch. Rows failing validation are not
// loaded. The batch's enclosing transaction commits even when individual
// rows were skipped or failed; only a session-level error aborts.
func (l *Loader) Load(ctx context.Context, rows []model.StagedTransaction) (LoadResult, error) {
	var res LoadResult
	log := logger.FromContext(ctx)

	sess, err := l.store.BeginLoad(ctx)
	if err != nil {
		return res, fmt.Errorf("beginning load session: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sess.Rollback(ctx)
		}
	}()

	for i := range rows {
		t := &rows[i]
		if !t.ParsedOK {
			continue
		}

		merchantNorm := NormalizeMerchant(t.MerchantRaw)
		if merchantNorm == "" {
			merchantNorm = NormalizeMerchant(t.Description)
		}
		accountRef := t.RawMeta["account_ref"]
		fp := model.Fingerprint(t.UserID, t.TxnDate, t.Amount, t.Direction,
			t.Description, merchantNorm, accountRef)

		if _, err := sess.FactByFingerprint(ctx, t.UserID, fp); err == nil {
			res.Deduped++
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Str("staged_id", t.ID).Msg("fingerprint lookup failed, skipping row")
			res.Failed++
			continue
		}

		category := t.Category
		if category == "" {
			category = "others"
		}
		if err := sess.EnsureCategory(ctx, category, titleWord(category), bucketFor(category)); err != nil {
			log.Warn().Err(err).Str("category", category).Msg("ensure category failed, skipping row")
			res.Failed++
			continue
		}

		txnID := uuid.New().String()
		fact := &model.TxnFact{
			TxnID:            txnID,
			UserID:           t.UserID,
			UploadID:         t.BatchID,
			SourceType:       string(t.Channel),
			AccountRef:       accountRef,
			TxnDate:          t.TxnDate,
			PostedDate:       t.PostedDate,
			Description:      t.Description,
			MerchantRaw:      t.MerchantRaw,
			MerchantNameNorm: merchantNorm,
			Amount:           t.Amount,
			Direction:        t.Direction,
			BankCode:         t.BankCode,
			Channel:          t.Channel,
			ReferenceID:      t.ReferenceID,
			DedupeFP:         fp,
			CreatedAt:        t.CreatedAt,
		}
		enriched := &model.TxnEnriched{
			TxnID:           txnID,
			CategoryCode:    category,
			SubcategoryCode: t.Subcategory,
			RuleConfidence:  t.CategoryConfidence,
			MatchedRuleID:   t.MatchedRuleID,
		}

		switch err := sess.InsertFact(ctx, fact, enriched); {
		case err == nil:
			res.Inserted++
		case errors.Is(err, store.ErrDuplicateFact):
			// Lost the race to a concurrent loader. Same outcome as the
			// fingerprint lookup hit.
			res.Deduped++
		default:
			log.Warn().Err(err).Str("staged_id", t.ID).Msg("fact insert failed, skipping row")
			res.Failed++
		}
	}

	if err := sess.Commit(ctx); err != nil {
		return res, fmt.Errorf("committing load session: %w", err)
	}
	committed = true
	return res, nil
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
