// Package knowledge implements the Knowledge Store: persisted Learning
// records scored for relevance against a goal and retrieved per category,
// grounded on the teacher's internal/store SQLite persistence pattern and
// internal/embedding's cosine-similarity utility. Where no embedding is
// available, scoring falls back to Jaccard similarity over tokenized text
// (spec.md §4.4's "similarity" input is pluggable, not embedding-only).
package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"sunwell/internal/domain"
	"sunwell/internal/embedding"
	"sunwell/internal/logging"
	"sunwell/internal/sunerr"
)

// MinScore is the retrieval floor from spec.md §4.4.
const MinScore = 0.3

// UsageBoostCap bounds how much repeated use can inflate a score
// (1 + 0.05 * min(use_count, 10), spec.md §4.4).
const UsageBoostCap = 10

// Store persists and scores Learning records.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	embedding embedding.Engine // optional; nil falls back to Jaccard scoring
}

// Open initializes the knowledge database at path. eng may be nil, in which
// case retrieval falls back to lexical (Jaccard) scoring only.
func Open(path string, eng embedding.Engine) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryKnowledge, "Open")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sunerr.Storage(fmt.Sprintf("create knowledge dir %s", dir), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sunerr.Storage("open knowledge database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Get(logging.CategoryKnowledge).Warn("pragma failed: %s: %v", pragma, err)
		}
	}

	s := &Store{db: db, embedding: eng}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS learnings (
		id TEXT PRIMARY KEY,
		fact TEXT NOT NULL,
		category TEXT NOT NULL,
		confidence REAL NOT NULL,
		source_turns_json TEXT NOT NULL,
		template_json TEXT,
		embedding BLOB,
		use_count INTEGER NOT NULL DEFAULT 0,
		last_used DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_learnings_category ON learnings(category);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return sunerr.Storage("migrate knowledge schema", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddLearning inserts or replaces a Learning, embedding its Fact text if an
// embedding engine is configured.
func (s *Store) AddLearning(ctx context.Context, l domain.Learning) error {
	timer := logging.StartTimer(logging.CategoryKnowledge, "AddLearning")
	defer timer.Stop()

	if l.ID == "" {
		l.ID = domain.LearningID(l.Category, l.Fact)
	}

	if s.embedding != nil && len(l.Embedding) == 0 {
		vec, err := s.embedding.Embed(ctx, l.Fact)
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Warn("embed learning %s failed, storing without embedding: %v", l.ID, err)
		} else {
			l.Embedding = vec
		}
	}

	sourceTurns, err := json.Marshal(l.SourceTurns)
	if err != nil {
		return sunerr.Storage("marshal source turns", err)
	}
	var templateJSON sql.NullString
	if l.Template != nil {
		data, err := json.Marshal(l.Template)
		if err != nil {
			return sunerr.Storage("marshal template", err)
		}
		templateJSON = sql.NullString{String: string(data), Valid: true}
	}

	var lastUsed sql.NullTime
	if !l.LastUsed.IsZero() {
		lastUsed = sql.NullTime{Time: l.LastUsed, Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO learnings (id, fact, category, confidence, source_turns_json, template_json, embedding, use_count, last_used)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			fact=excluded.fact, confidence=excluded.confidence, source_turns_json=excluded.source_turns_json,
			template_json=excluded.template_json, embedding=excluded.embedding`,
		l.ID, l.Fact, string(l.Category), l.Confidence, string(sourceTurns), templateJSON, encodeVector(l.Embedding), l.UseCount, lastUsed,
	)
	if err != nil {
		return sunerr.Storage("store learning", err)
	}
	return nil
}

// RecordUsage applies domain.Learning.WithUsage and persists the result.
func (s *Store) RecordUsage(id string, success bool, now time.Time) error {
	timer := logging.StartTimer(logging.CategoryKnowledge, "RecordUsage")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.loadLocked(id)
	if err != nil {
		return err
	}
	updated := l.WithUsage(success, now)

	_, err = s.db.Exec(
		`UPDATE learnings SET confidence = ?, use_count = ?, last_used = ? WHERE id = ?`,
		updated.Confidence, updated.UseCount, updated.LastUsed, updated.ID,
	)
	if err != nil {
		return sunerr.Storage("record learning usage", err)
	}
	return nil
}

func (s *Store) loadLocked(id string) (domain.Learning, error) {
	row := s.db.QueryRow(`SELECT id, fact, category, confidence, source_turns_json, template_json, embedding, use_count, last_used FROM learnings WHERE id = ?`, id)
	l, err := scanLearning(row)
	if err == sql.ErrNoRows {
		return domain.Learning{}, sunerr.Storage(fmt.Sprintf("no learning %s", id), nil)
	}
	if err != nil {
		return domain.Learning{}, sunerr.Storage("load learning", err)
	}
	return l, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLearning(row rowScanner) (domain.Learning, error) {
	var (
		id, fact, category                string
		confidence                        float64
		sourceTurnsJSON                   string
		templateJSON                      sql.NullString
		embeddingBlob                     []byte
		useCount                          int
		lastUsed                         sql.NullTime
	)
	if err := row.Scan(&id, &fact, &category, &confidence, &sourceTurnsJSON, &templateJSON, &embeddingBlob, &useCount, &lastUsed); err != nil {
		return domain.Learning{}, err
	}

	var sourceTurns []string
	_ = json.Unmarshal([]byte(sourceTurnsJSON), &sourceTurns)

	var template *domain.TemplateData
	if templateJSON.Valid {
		template = &domain.TemplateData{}
		if err := json.Unmarshal([]byte(templateJSON.String), template); err != nil {
			return domain.Learning{}, err
		}
	}

	l := domain.Learning{
		ID:          id,
		Fact:        fact,
		Category:    domain.LearningCategory(category),
		Confidence:  confidence,
		SourceTurns: sourceTurns,
		Template:    template,
		Embedding:   decodeVector(embeddingBlob),
		UseCount:    useCount,
	}
	if lastUsed.Valid {
		l.LastUsed = lastUsed.Time
	}
	return l, nil
}

// RetrieveForPlanning scores every stored Learning against goalText and
// returns a domain.PlanningContext truncated to limitPerCategory per bucket,
// per spec.md §4.4: score = similarity * confidence * (1 + 0.05 * min(use_count,10)),
// entries below MinScore are dropped.
func (s *Store) RetrieveForPlanning(ctx context.Context, goalText string, limitPerCategory int) (domain.PlanningContext, error) {
	timer := logging.StartTimer(logging.CategoryKnowledge, "RetrieveForPlanning")
	defer timer.Stop()

	if limitPerCategory <= 0 {
		limitPerCategory = 5
	}

	s.mu.RLock()
	rows, err := s.db.Query(`SELECT id, fact, category, confidence, source_turns_json, template_json, embedding, use_count, last_used FROM learnings`)
	s.mu.RUnlock()
	if err != nil {
		return domain.PlanningContext{}, sunerr.Storage("query learnings", err)
	}
	defer rows.Close()

	var goalEmbedding []float32
	if s.embedding != nil {
		vec, err := s.embedding.Embed(ctx, goalText)
		if err != nil {
			logging.Get(logging.CategoryKnowledge).Warn("embed goal text failed, falling back to lexical scoring: %v", err)
		} else {
			goalEmbedding = vec
		}
	}

	byCategory := map[domain.LearningCategory][]scored{}
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return domain.PlanningContext{}, sunerr.Storage("scan learning", err)
		}

		sim := similarity(goalText, goalEmbedding, l)
		score := sim * l.Confidence * (1 + 0.05*float64(min(l.UseCount, UsageBoostCap)))
		if score < MinScore {
			continue
		}
		byCategory[l.Category] = append(byCategory[l.Category], scored{learning: l, score: score})
	}

	pick := func(cat domain.LearningCategory) []domain.Learning {
		entries := byCategory[cat]
		sort.Slice(entries, func(i, j int) bool { return entries[i].score > entries[j].score })
		if len(entries) > limitPerCategory {
			entries = entries[:limitPerCategory]
		}
		out := make([]domain.Learning, len(entries))
		for i, e := range entries {
			out[i] = e.learning
		}
		return out
	}

	return domain.PlanningContext{
		Facts:       pick(domain.CategoryFact),
		Preferences: pick(domain.CategoryPreference),
		Constraints: pick(domain.CategoryConstraint),
		DeadEnds:    pick(domain.CategoryDeadEnd),
		Templates:   pick(domain.CategoryTemplate),
		Heuristics:  pick(domain.CategoryHeuristic),
	}, nil
}

// GetTemplates returns every stored template-category Learning, for the
// planner's template-matching fast path (domain.PlanningContext.BestTemplate).
func (s *Store) GetTemplates() ([]domain.Learning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, fact, category, confidence, source_turns_json, template_json, embedding, use_count, last_used FROM learnings WHERE category = ?`, string(domain.CategoryTemplate))
	if err != nil {
		return nil, sunerr.Storage("query templates", err)
	}
	defer rows.Close()

	var out []domain.Learning
	for rows.Next() {
		l, err := scanLearning(rows)
		if err != nil {
			return nil, sunerr.Storage("scan template", err)
		}
		out = append(out, l)
	}
	return out, nil
}

type scored struct {
	learning domain.Learning
	score    float64
}

func similarity(goalText string, goalEmbedding []float32, l domain.Learning) float64 {
	if goalEmbedding != nil && len(l.Embedding) > 0 {
		sim, err := embedding.CosineSimilarity(goalEmbedding, l.Embedding)
		if err == nil {
			return math.Max(0, sim)
		}
	}
	return jaccard(goalText, l.Fact)
}

// jaccard is the fallback lexical similarity when embeddings are
// unavailable for either side: |intersection| / |union| over lowercased
// whitespace-tokenized words.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		out[tok] = true
	}
	return out
}

func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
