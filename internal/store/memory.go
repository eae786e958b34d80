package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spendsense/backend/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for local
// development and as the collaborator fake in tests.
type MemoryStore struct {
	mu sync.RWMutex

	batches    map[string]*model.Batch
	staged     map[string]*model.StagedTransaction // by staged ID
	rules      []model.Rule
	facts      map[string]*model.TxnFact     // by txn ID
	factsByFP  map[string]string             // userID|fp -> txn ID
	enrichment map[string]*model.TxnEnriched // by txn ID
	categories map[string]*model.Category
	emailMeta  map[string]*model.EmailMessageMeta
	kpis       map[string]decimal.Decimal // userID|yyyy-mm|direction -> total
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches:    make(map[string]*model.Batch),
		staged:     make(map[string]*model.StagedTransaction),
		facts:      make(map[string]*model.TxnFact),
		factsByFP:  make(map[string]string),
		enrichment: make(map[string]*model.TxnEnriched),
		categories: make(map[string]*model.Category),
		emailMeta:  make(map[string]*model.EmailMessageMeta),
		kpis:       make(map[string]decimal.Decimal),
	}
}

// SeedRules replaces the rule table. Test and local-dev helper.
func (s *MemoryStore) SeedRules(rules []model.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append([]model.Rule(nil), rules...)
}

func (s *MemoryStore) CreateBatch(_ context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.batches[b.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) UpdateBatch(_ context.Context, b *model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; !ok {
		return ErrNotFound
	}
	cp := *b
	s.batches[b.ID] = &cp
	return nil
}

func (s *MemoryStore) ListBatches(_ context.Context, userID string, limit, offset int) ([]*model.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Batch
	for _, b := range s.batches {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) InsertStaged(_ context.Context, txns []model.StagedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range txns {
		cp := txns[i]
		s.staged[cp.ID] = &cp
	}
	return nil
}

func (s *MemoryStore) ListStaged(_ context.Context, batchID string) ([]model.StagedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.StagedTransaction
	for _, t := range s.staged {
		if t.BatchID == batchID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateStaged(_ context.Context, txn *model.StagedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staged[txn.ID]; !ok {
		return ErrNotFound
	}
	cp := *txn
	s.staged[txn.ID] = &cp
	return nil
}

func (s *MemoryStore) ActiveRules(_ context.Context, bank model.BankCode) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Rule
	for _, r := range s.rules {
		if !r.Active {
			continue
		}
		if r.BankCode != nil && *r.BankCode != bank {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out, nil
}

func (s *MemoryStore) GetFact(_ context.Context, txnID string) (*model.TxnFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facts[txnID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) GetEnrichment(_ context.Context, txnID string) (*model.TxnEnriched, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrichment[txnID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) UpsertEnrichment(_ context.Context, e *model.TxnEnriched) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.enrichment[e.TxnID] = &cp
	return nil
}

func (s *MemoryStore) InsertEmailMeta(_ context.Context, meta *model.EmailMessageMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *meta
	s.emailMeta[meta.ID] = &cp
	return nil
}

// EmailMetaByBatch returns persisted email metadata for a batch. Test helper.
func (s *MemoryStore) EmailMetaByBatch(batchID string) []model.EmailMessageMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EmailMessageMeta
	for _, m := range s.emailMeta {
		if m.BatchID == batchID {
			out = append(out, *m)
		}
	}
	return out
}

func (s *MemoryStore) BeginLoad(_ context.Context) (LoadSession, error) {
	return &memoryLoadSession{store: s}, nil
}

// RefreshKPIs recomputes the per-month debit/credit totals for a user.
func (s *MemoryStore) RefreshKPIs(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.kpis {
		if strings.HasPrefix(k, userID+"|") {
			delete(s.kpis, k)
		}
	}
	for _, f := range s.facts {
		if f.UserID != userID {
			continue
		}
		key := userID + "|" + f.TxnDate.Format("2006-01") + "|" + string(f.Direction)
		s.kpis[key] = s.kpis[key].Add(f.Amount)
	}
	return nil
}

// MonthlyKPI returns the aggregate for one user/month/direction. Test helper.
func (s *MemoryStore) MonthlyKPI(userID string, month time.Time, dir model.Direction) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.kpis[userID+"|"+month.Format("2006-01")+"|"+string(dir)]
}

// FactCount reports the number of loaded facts. Test helper.
func (s *MemoryStore) FactCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

func (s *MemoryStore) Close() {}

// memoryLoadSession applies writes directly to the store maps. The in-memory
// backend has no concurrent loaders, so commit and rollback are bookkeeping
// only; the savepoint contract reduces to per-row duplicate detection.
type memoryLoadSession struct {
	store *MemoryStore
	done  bool
}

func (l *memoryLoadSession) FactByFingerprint(_ context.Context, userID, fp string) (*model.TxnFact, error) {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	id, ok := l.store.factsByFP[userID+"|"+fp]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l.store.facts[id]
	return &cp, nil
}

func (l *memoryLoadSession) EnsureCategory(_ context.Context, code, name, bucket string) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if _, ok := l.store.categories[code]; !ok {
		l.store.categories[code] = &model.Category{Code: code, Name: name, Bucket: bucket, Active: true}
	}
	return nil
}

func (l *memoryLoadSession) InsertFact(_ context.Context, fact *model.TxnFact, enriched *model.TxnEnriched) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()

	fpKey := fact.UserID + "|" + fact.DedupeFP
	if _, exists := l.store.factsByFP[fpKey]; exists {
		return ErrDuplicateFact
	}

	fc := *fact
	l.store.facts[fact.TxnID] = &fc
	l.store.factsByFP[fpKey] = fact.TxnID
	if enriched != nil {
		ec := *enriched
		l.store.enrichment[enriched.TxnID] = &ec
	}
	return nil
}

func (l *memoryLoadSession) Commit(_ context.Context) error {
	l.done = true
	return nil
}

func (l *memoryLoadSession) Rollback(_ context.Context) error {
	l.done = true
	return nil
}
