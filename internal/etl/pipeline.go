// Package etl orchestrates the ingest pipeline: parse, stage, validate,
// categorize, load. Batch status moves pending -> parsed -> categorized ->
// loaded, with failed reachable from any non-terminal state.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spendsense/backend/internal/categorize"
	"github.com/spendsense/backend/internal/logger"
	"github.com/spendsense/backend/internal/model"
	"github.com/spendsense/backend/internal/parser"
	"github.com/spendsense/backend/internal/store"
)

// Pipeline wires the parsers, the categorization engine, and the loader
// around one Store.
type Pipeline struct {
	store  store.Store
	engine *categorize.Engine
	loader *Loader
	now    func() time.Time
}

// NewPipeline builds a pipeline. The engine is expected to share the same
// store (or a rule cache over it) as its rule source.
func NewPipeline(st store.Store, engine *categorize.Engine) *Pipeline {
	return &Pipeline{
		store:  st,
		engine: engine,
		loader: NewLoader(st),
		now:    time.Now,
	}
}

// IngestFile runs the whole pipeline for one uploaded statement file. The
// returned batch carries final counts; a parse failure marks it failed and
// returns the parse error.
func (p *Pipeline) IngestFile(ctx context.Context, userID, filename string, data []byte, hint model.BankCode, pdfPassword string) (*model.Batch, error) {
	batch := &model.Batch{
		ID:         uuid.New().String(),
		UserID:     userID,
		SourceType: "file",
		SourceName: filename,
		BankCode:   hint,
		Status:     model.BatchPending,
		CreatedAt:  p.now(),
		UpdatedAt:  p.now(),
	}
	if err := p.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}

	log := logger.FromContext(ctx).With().
		Str("batch_id", batch.ID).Str("user_id", userID).Str("file", filename).Logger()
	ctx = logger.WithContext(ctx, log)

	res, err := parser.ParseFile(filename, data, hint, pdfPassword)
	if err != nil {
		p.failBatch(ctx, batch, err)
		return batch, err
	}

	if err := p.stageRows(ctx, batch, res.Rows, res.Stats); err != nil {
		p.failBatch(ctx, batch, err)
		return batch, err
	}
	batch.BankCode = res.Bank

	if err := p.runPostParse(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}

// EmailMessage is one fetched alert email plus its mailbox metadata.
type EmailMessage struct {
	AccountID string
	MessageID string
	ThreadID  string
	Subject   string
	Body      string
	Sender    string
	To        string
	Snippet   string
}

// IngestEmails runs the pipeline over a sweep of alert emails.
// Non-transactional emails are recorded in the audit trail but stage no row.
func (p *Pipeline) IngestEmails(ctx context.Context, userID string, msgs []EmailMessage) (*model.Batch, error) {
	batch := &model.Batch{
		ID:         uuid.New().String(),
		UserID:     userID,
		SourceType: "gmail",
		SourceName: fmt.Sprintf("%d messages", len(msgs)),
		BankCode:   model.BankUnknown,
		Status:     model.BatchPending,
		CreatedAt:  p.now(),
		UpdatedAt:  p.now(),
	}
	if err := p.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}

	log := logger.FromContext(ctx).With().
		Str("batch_id", batch.ID).Str("user_id", userID).Logger()
	ctx = logger.WithContext(ctx, log)

	var rows []model.TxnRow
	var stats parser.Stats
	for _, msg := range msgs {
		row, ok := parser.ParseEmail(parser.EmailInput{
			Subject: msg.Subject, Body: msg.Body, Sender: msg.Sender,
		}, p.now())
		if ok {
			rows = append(rows, row)
			stats.Parsed++
		} else {
			stats.Skipped++
		}

		meta := &model.EmailMessageMeta{
			ID:        uuid.New().String(),
			BatchID:   batch.ID,
			UserID:    userID,
			AccountID: msg.AccountID,
			MessageID: msg.MessageID,
			ThreadID:  msg.ThreadID,
			Subject:   msg.Subject,
			From:      msg.Sender,
			To:        msg.To,
			Snippet:   msg.Snippet,
			Parsed:    ok,
			CreatedAt: p.now(),
		}
		if err := p.store.InsertEmailMeta(ctx, meta); err != nil {
			log.Warn().Err(err).Str("message_id", msg.MessageID).Msg("persisting email meta failed")
		}
	}

	if err := p.stageRows(ctx, batch, rows, stats); err != nil {
		p.failBatch(ctx, batch, err)
		return batch, err
	}
	if err := p.runPostParse(ctx, batch); err != nil {
		return batch, err
	}
	return batch, nil
}

// stageRows persists parsed rows and advances the batch to parsed.
func (p *Pipeline) stageRows(ctx context.Context, batch *model.Batch, rows []model.TxnRow, stats parser.Stats) error {
	staged := make([]model.StagedTransaction, 0, len(rows))
	for _, row := range rows {
		staged = append(staged, model.StagedFromRow(uuid.New().String(), batch.ID, batch.UserID, row))
	}
	if len(staged) > 0 {
		if err := p.store.InsertStaged(ctx, staged); err != nil {
			return fmt.Errorf("staging %d rows: %w", len(staged), err)
		}
	}

	batch.RowsParsed = stats.Parsed
	batch.RowsSkipped = stats.Skipped
	if err := batch.Advance(model.BatchParsed); err != nil {
		return err
	}
	if err := p.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("updating batch after staging: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Int("parsed", stats.Parsed).Int("skipped", stats.Skipped).Msg("rows staged")
	return nil
}

// runPostParse drives validate, categorize, and load for a freshly parsed
// batch. A stage error marks the batch failed and propagates.
func (p *Pipeline) runPostParse(ctx context.Context, batch *model.Batch) error {
	if err := p.validate(ctx, batch); err != nil {
		p.failBatch(ctx, batch, err)
		return err
	}
	if batch.RowsValid == 0 {
		log := logger.FromContext(ctx)
		log.Info().Msg("no valid rows, skipping categorize and load")
		return nil
	}
	if err := p.categorize(ctx, batch); err != nil {
		p.failBatch(ctx, batch, err)
		return err
	}
	if err := p.load(ctx, batch); err != nil {
		p.failBatch(ctx, batch, err)
		return err
	}
	return nil
}

// Validate re-checks structural completeness for a batch's staged rows and
// refreshes the valid/invalid counts. Idempotent.
func (p *Pipeline) Validate(ctx context.Context, batchID string) (*model.Batch, error) {
	batch, err := p.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := p.validate(ctx, batch); err != nil {
		p.failBatch(ctx, batch, err)
		return batch, err
	}
	return batch, nil
}

func (p *Pipeline) validate(ctx context.Context, batch *model.Batch) error {
	staged, err := p.store.ListStaged(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("listing staged rows: %w", err)
	}

	staged, res := ValidateStaged(staged)
	for i := range staged {
		if err := p.store.UpdateStaged(ctx, &staged[i]); err != nil {
			return fmt.Errorf("updating staged row: %w", err)
		}
	}

	batch.RowsValid = res.Valid
	batch.RowsInvalid = res.Invalid
	if err := p.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("updating batch after validation: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Int("valid", res.Valid).Int("invalid", res.Invalid).Msg("batch validated")
	return nil
}

// Categorize runs the engine over a batch's valid staged rows. Idempotent:
// re-running recomputes categories without double-counting, and never
// touches rows pinned by a manual edit.
func (p *Pipeline) Categorize(ctx context.Context, batchID string) (*model.Batch, error) {
	batch, err := p.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := p.categorize(ctx, batch); err != nil {
		p.failBatch(ctx, batch, err)
		return batch, err
	}
	return batch, nil
}

func (p *Pipeline) categorize(ctx context.Context, batch *model.Batch) error {
	staged, err := p.store.ListStaged(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("listing staged rows: %w", err)
	}

	categorized := 0
	for i := range staged {
		t := &staged[i]
		if !t.ParsedOK {
			continue
		}
		if t.CategoryConfidence >= model.ManualConfidence {
			categorized++
			continue
		}

		a, err := p.engine.Categorize(ctx, categorize.Input{
			Description: t.Description,
			Merchant:    t.MerchantRaw,
			Direction:   t.Direction,
			BankCode:    t.BankCode,
		})
		if err != nil {
			return fmt.Errorf("categorizing staged row %s: %w", t.ID, err)
		}

		t.Category = a.Category
		t.Subcategory = a.Subcategory
		t.CategoryConfidence = a.Confidence
		t.MatchedRuleID = a.MatchedRuleID
		if err := p.store.UpdateStaged(ctx, t); err != nil {
			return fmt.Errorf("updating staged row %s: %w", t.ID, err)
		}
		categorized++
	}

	batch.RowsCategorized = categorized
	if batch.Status == model.BatchParsed {
		if err := batch.Advance(model.BatchCategorized); err != nil {
			return err
		}
	}
	if err := p.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("updating batch after categorization: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Int("categorized", categorized).Msg("batch categorized")
	return nil
}

// Load moves a categorized batch's valid rows into the fact table.
func (p *Pipeline) Load(ctx context.Context, batchID string) (*model.Batch, error) {
	batch, err := p.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := p.load(ctx, batch); err != nil {
		p.failBatch(ctx, batch, err)
		return batch, err
	}
	return batch, nil
}

func (p *Pipeline) load(ctx context.Context, batch *model.Batch) error {
	staged, err := p.store.ListStaged(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("listing staged rows: %w", err)
	}

	res, err := p.loader.Load(ctx, staged)
	if err != nil {
		return err
	}

	batch.RowsLoaded = res.Inserted
	batch.RowsDeduped = res.Deduped
	if batch.Status == model.BatchCategorized {
		if err := batch.Advance(model.BatchLoaded); err != nil {
			return err
		}
	}
	if err := p.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("updating batch after load: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("inserted", res.Inserted).Int("deduped", res.Deduped).Int("failed", res.Failed).
		Msg("batch loaded")

	// Aggregate refresh is best-effort: its failure never unwinds the load.
	if err := p.store.RefreshKPIs(ctx, batch.UserID); err != nil {
		log.Warn().Err(err).Msg("KPI refresh failed")
	}
	return nil
}

// OverrideCategory applies a manual category edit to a loaded fact. The
// enrichment is pinned at the manual confidence ceiling so automated
// re-categorization leaves it alone.
func (p *Pipeline) OverrideCategory(ctx context.Context, txnID, category, subcategory string) error {
	if _, err := p.store.GetFact(ctx, txnID); err != nil {
		return err
	}

	sess, err := p.store.BeginLoad(ctx)
	if err != nil {
		return fmt.Errorf("beginning session for category ensure: %w", err)
	}
	if err := sess.EnsureCategory(ctx, category, titleWord(category), bucketFor(category)); err != nil {
		_ = sess.Rollback(ctx)
		return err
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("committing category ensure: %w", err)
	}

	return p.store.UpsertEnrichment(ctx, &model.TxnEnriched{
		TxnID:           txnID,
		CategoryCode:    category,
		SubcategoryCode: subcategory,
		RuleConfidence:  model.ManualConfidence,
	})
}

// RecategorizeFact re-runs the engine for one loaded fact, honoring the
// manual-edit ceiling: enrichment at or above it is never overwritten.
func (p *Pipeline) RecategorizeFact(ctx context.Context, txnID string) error {
	fact, err := p.store.GetFact(ctx, txnID)
	if err != nil {
		return err
	}
	existing, err := p.store.GetEnrichment(ctx, txnID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if existing != nil && existing.RuleConfidence >= model.ManualConfidence {
		return nil
	}

	a, err := p.engine.Categorize(ctx, categorize.Input{
		Description: fact.Description,
		Merchant:    fact.MerchantRaw,
		Direction:   fact.Direction,
		BankCode:    fact.BankCode,
	})
	if err != nil {
		return err
	}

	return p.store.UpsertEnrichment(ctx, &model.TxnEnriched{
		TxnID:           txnID,
		CategoryCode:    a.Category,
		SubcategoryCode: a.Subcategory,
		RuleConfidence:  a.Confidence,
		MatchedRuleID:   a.MatchedRuleID,
	})
}

func (p *Pipeline) failBatch(ctx context.Context, batch *model.Batch, cause error) {
	log := logger.FromContext(ctx)
	if err := batch.Fail(cause.Error()); err != nil {
		log.Error().Err(cause).Msg("batch failure on terminal batch")
		return
	}
	if err := p.store.UpdateBatch(ctx, batch); err != nil {
		log.Error().Err(err).Msg("persisting failed batch status")
	}
	log.Error().Err(cause).Msg("batch failed")
}
