package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spendsense/backend/internal/model"
)

//go:embed schema.sql
var schemaSQL string

const pgUniqueViolation = "23505"

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate applies the embedded schema. Idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreateBatch(ctx context.Context, b *model.Batch) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO etl_batch (
			batch_id, user_id, source_type, source_name, bank_code, status,
			rows_parsed, rows_skipped, rows_valid, rows_invalid,
			rows_categorized, rows_loaded, rows_deduped, error_message,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		b.ID, b.UserID, b.SourceType, b.SourceName, b.BankCode, b.Status,
		b.RowsParsed, b.RowsSkipped, b.RowsValid, b.RowsInvalid,
		b.RowsCategorized, b.RowsLoaded, b.RowsDeduped, b.Error,
		b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting batch %s: %w", b.ID, err)
	}
	return nil
}

const batchColumns = `batch_id, user_id, source_type, source_name, bank_code, status,
	rows_parsed, rows_skipped, rows_valid, rows_invalid,
	rows_categorized, rows_loaded, rows_deduped, error_message, created_at, updated_at`

func scanBatch(row pgx.Row) (*model.Batch, error) {
	var b model.Batch
	err := row.Scan(&b.ID, &b.UserID, &b.SourceType, &b.SourceName, &b.BankCode, &b.Status,
		&b.RowsParsed, &b.RowsSkipped, &b.RowsValid, &b.RowsInvalid,
		&b.RowsCategorized, &b.RowsLoaded, &b.RowsDeduped, &b.Error, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	return scanBatch(s.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM etl_batch WHERE batch_id = $1`, id))
}

func (s *PostgresStore) UpdateBatch(ctx context.Context, b *model.Batch) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE etl_batch SET
			status = $2, rows_parsed = $3, rows_skipped = $4, rows_valid = $5,
			rows_invalid = $6, rows_categorized = $7, rows_loaded = $8,
			rows_deduped = $9, error_message = $10, updated_at = now()
		WHERE batch_id = $1`,
		b.ID, b.Status, b.RowsParsed, b.RowsSkipped, b.RowsValid,
		b.RowsInvalid, b.RowsCategorized, b.RowsLoaded, b.RowsDeduped, b.Error)
	if err != nil {
		return fmt.Errorf("updating batch %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListBatches(ctx context.Context, userID string, limit, offset int) ([]*model.Batch, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+batchColumns+` FROM etl_batch
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	defer rows.Close()

	var out []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertStaged(ctx context.Context, txns []model.StagedTransaction) error {
	batch := &pgx.Batch{}
	for _, t := range txns {
		batch.Queue(`
			INSERT INTO staged_txn (
				id, batch_id, user_id, txn_date, posted_date, amount, direction,
				description, merchant_raw, reference_id, bank_code, channel,
				raw_meta, category, subcategory, category_confidence,
				matched_rule_id, parsed_ok, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
			t.ID, t.BatchID, t.UserID, t.TxnDate, t.PostedDate, t.Amount, t.Direction,
			t.Description, t.MerchantRaw, t.ReferenceID, t.BankCode, t.Channel,
			t.RawMeta, t.Category, t.Subcategory, t.CategoryConfidence,
			t.MatchedRuleID, t.ParsedOK, t.CreatedAt)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting %d staged rows: %w", len(txns), err)
	}
	return nil
}

const stagedColumns = `id, batch_id, user_id, txn_date, posted_date, amount, direction,
	description, merchant_raw, reference_id, bank_code, channel, raw_meta,
	category, subcategory, category_confidence, matched_rule_id, parsed_ok, created_at`

func (s *PostgresStore) ListStaged(ctx context.Context, batchID string) ([]model.StagedTransaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stagedColumns+` FROM staged_txn WHERE batch_id = $1 ORDER BY created_at, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("listing staged rows: %w", err)
	}
	defer rows.Close()

	var out []model.StagedTransaction
	for rows.Next() {
		var t model.StagedTransaction
		err := rows.Scan(&t.ID, &t.BatchID, &t.UserID, &t.TxnDate, &t.PostedDate, &t.Amount, &t.Direction,
			&t.Description, &t.MerchantRaw, &t.ReferenceID, &t.BankCode, &t.Channel, &t.RawMeta,
			&t.Category, &t.Subcategory, &t.CategoryConfidence, &t.MatchedRuleID, &t.ParsedOK, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateStaged(ctx context.Context, txn *model.StagedTransaction) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE staged_txn SET
			category = $2, subcategory = $3, category_confidence = $4,
			matched_rule_id = $5, parsed_ok = $6
		WHERE id = $1`,
		txn.ID, txn.Category, txn.Subcategory, txn.CategoryConfidence,
		txn.MatchedRuleID, txn.ParsedOK)
	if err != nil {
		return fmt.Errorf("updating staged row %s: %w", txn.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ActiveRules(ctx context.Context, bank model.BankCode) ([]model.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rule_id, bank_code, match_field, match_type, match_value,
		       direction, primary_category, sub_category, priority, active
		FROM categorization_rule
		WHERE active AND (bank_code IS NULL OR bank_code = $1)
		ORDER BY priority ASC`, string(bank))
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		var r model.Rule
		var bankCode, direction *string
		err := rows.Scan(&r.RuleID, &bankCode, &r.MatchField, &r.MatchType, &r.MatchValue,
			&direction, &r.PrimaryCategory, &r.SubCategory, &r.Priority, &r.Active)
		if err != nil {
			return nil, err
		}
		if bankCode != nil {
			b := model.BankCode(*bankCode)
			r.BankCode = &b
		}
		if direction != nil {
			d := model.Direction(*direction)
			r.Direction = &d
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const factColumns = `txn_id, user_id, upload_id, source_type, account_ref, txn_date, posted_date,
	description, merchant_raw, merchant_name_norm, amount, direction, bank_code,
	channel, reference_id, dedupe_fp, created_at`

func scanFact(row pgx.Row) (*model.TxnFact, error) {
	var f model.TxnFact
	err := row.Scan(&f.TxnID, &f.UserID, &f.UploadID, &f.SourceType, &f.AccountRef, &f.TxnDate, &f.PostedDate,
		&f.Description, &f.MerchantRaw, &f.MerchantNameNorm, &f.Amount, &f.Direction, &f.BankCode,
		&f.Channel, &f.ReferenceID, &f.DedupeFP, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (s *PostgresStore) GetFact(ctx context.Context, txnID string) (*model.TxnFact, error) {
	return scanFact(s.pool.QueryRow(ctx,
		`SELECT `+factColumns+` FROM txn_fact WHERE txn_id = $1`, txnID))
}

func (s *PostgresStore) GetEnrichment(ctx context.Context, txnID string) (*model.TxnEnriched, error) {
	var e model.TxnEnriched
	err := s.pool.QueryRow(ctx, `
		SELECT txn_id, category_code, subcategory_code, rule_confidence, matched_rule_id
		FROM txn_enriched WHERE txn_id = $1`, txnID).
		Scan(&e.TxnID, &e.CategoryCode, &e.SubcategoryCode, &e.RuleConfidence, &e.MatchedRuleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) UpsertEnrichment(ctx context.Context, e *model.TxnEnriched) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO txn_enriched (txn_id, category_code, subcategory_code, rule_confidence, matched_rule_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (txn_id) DO UPDATE SET
			category_code = EXCLUDED.category_code,
			subcategory_code = EXCLUDED.subcategory_code,
			rule_confidence = EXCLUDED.rule_confidence,
			matched_rule_id = EXCLUDED.matched_rule_id`,
		e.TxnID, e.CategoryCode, e.SubcategoryCode, e.RuleConfidence, e.MatchedRuleID)
	if err != nil {
		return fmt.Errorf("upserting enrichment for %s: %w", e.TxnID, err)
	}
	return nil
}

func (s *PostgresStore) InsertEmailMeta(ctx context.Context, meta *model.EmailMessageMeta) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO email_message_meta (
			id, batch_id, user_id, account_id, message_id, thread_id,
			subject, from_addr, to_addr, snippet, parsed, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		meta.ID, meta.BatchID, meta.UserID, meta.AccountID, meta.MessageID, meta.ThreadID,
		meta.Subject, meta.From, meta.To, meta.Snippet, meta.Parsed, meta.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting email meta: %w", err)
	}
	return nil
}

func (s *PostgresStore) BeginLoad(ctx context.Context) (LoadSession, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning load transaction: %w", err)
	}
	return &pgLoadSession{tx: tx}, nil
}

// RefreshKPIs rebuilds the user's monthly aggregates from the fact table.
func (s *PostgresStore) RefreshKPIs(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kpi_monthly (user_id, month, direction, total, txn_count)
		SELECT user_id, date_trunc('month', txn_date)::date, direction, SUM(amount), COUNT(*)
		FROM txn_fact WHERE user_id = $1
		GROUP BY user_id, date_trunc('month', txn_date), direction
		ON CONFLICT (user_id, month, direction) DO UPDATE SET
			total = EXCLUDED.total, txn_count = EXCLUDED.txn_count`, userID)
	if err != nil {
		return fmt.Errorf("refreshing KPIs for %s: %w", userID, err)
	}
	return nil
}

// pgLoadSession drives one fact-load transaction. Each InsertFact opens a
// nested transaction, which pgx issues as a SAVEPOINT, so a constraint
// violation rolls back that row alone.
type pgLoadSession struct {
	tx pgx.Tx
}

func (l *pgLoadSession) FactByFingerprint(ctx context.Context, userID, fp string) (*model.TxnFact, error) {
	return scanFact(l.tx.QueryRow(ctx,
		`SELECT `+factColumns+` FROM txn_fact WHERE user_id = $1 AND dedupe_fp = $2`, userID, fp))
}

func (l *pgLoadSession) EnsureCategory(ctx context.Context, code, name, bucket string) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO dim_category (code, name, bucket, active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (code) DO NOTHING`, code, name, bucket)
	if err != nil {
		return fmt.Errorf("ensuring category %s: %w", code, err)
	}
	return nil
}

func (l *pgLoadSession) InsertFact(ctx context.Context, fact *model.TxnFact, enriched *model.TxnEnriched) error {
	sp, err := l.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("opening savepoint: %w", err)
	}

	err = insertFactRows(ctx, sp, fact, enriched)
	if err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateFact
		}
		return err
	}
	return sp.Commit(ctx)
}

func insertFactRows(ctx context.Context, tx pgx.Tx, fact *model.TxnFact, enriched *model.TxnEnriched) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO txn_fact (`+factColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		fact.TxnID, fact.UserID, fact.UploadID, fact.SourceType, fact.AccountRef,
		fact.TxnDate, fact.PostedDate, fact.Description, fact.MerchantRaw,
		fact.MerchantNameNorm, fact.Amount, fact.Direction, fact.BankCode,
		fact.Channel, fact.ReferenceID, fact.DedupeFP, fact.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting fact %s: %w", fact.TxnID, err)
	}
	if enriched == nil {
		return nil
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO txn_enriched (txn_id, category_code, subcategory_code, rule_confidence, matched_rule_id)
		VALUES ($1, $2, $3, $4, $5)`,
		enriched.TxnID, enriched.CategoryCode, enriched.SubcategoryCode,
		enriched.RuleConfidence, enriched.MatchedRuleID)
	if err != nil {
		return fmt.Errorf("inserting enrichment %s: %w", enriched.TxnID, err)
	}
	return nil
}

func (l *pgLoadSession) Commit(ctx context.Context) error {
	return l.tx.Commit(ctx)
}

func (l *pgLoadSession) Rollback(ctx context.Context) error {
	return l.tx.Rollback(ctx)
}
