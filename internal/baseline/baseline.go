// Package baseline records expected behaviors and reference embeddings per
// (agentId, intentHash) pair and compares observed behavior against them.
// The composite-key map guarded by a single RWMutex mirrors the teacher's
// reputation manager.
package baseline

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ocx/sentinel/internal/embedding"
	"github.com/ocx/sentinel/internal/frame"
)

const (
	behaviorWeight  = 0.6
	embeddingWeight = 0.4
)

// Record is one stored baseline, keyed by the composite (agentId, intentHash).
type Record struct {
	AgentID           string
	IntentHash        string
	ExpectedBehaviors map[string]bool
	ReferenceEmbedding embedding.Vector
	CreatedAt         time.Time
	LastSeenAt        time.Time
}

// CompareResult is the outcome of comparing an observation against a
// stored baseline.
type CompareResult struct {
	HasBaseline       bool
	DriftScore        float64
	MissingBehaviors  []string
	ExtraBehaviors    []string
	EmbeddingDistance float64
}

// SnapshotRecord is the bulk load/save wire shape for persistence
// collaborators, per the external snapshot interface.
type SnapshotRecord struct {
	AgentID            string    `json:"agentId"`
	IntentHash         string    `json:"intentHash"`
	ExpectedBehaviors  []string  `json:"expectedBehaviors"`
	ReferenceEmbedding []float64 `json:"referenceEmbedding"`
	CreatedAt          time.Time `json:"createdAt"`
	LastSeenAt         time.Time `json:"lastSeenAt"`
}

// Store is the in-memory Baseline Store. Alternative implementations
// (persistent, e.g. Redis-backed) satisfy the same operation contract
// without embedding this type.
type Store struct {
	mu       sync.RWMutex
	records  map[string]*Record // "agentID:intentHash" -> record
}

// New returns an empty in-memory Store.
func New() *Store {
	return &Store{records: make(map[string]*Record)}
}

func key(agentID, intentHash string) string {
	return fmt.Sprintf("%s:%s", agentID, intentHash)
}

// Record stores or replaces a baseline for (agentID, frame.IntentHash).
func (s *Store) Record(agentID string, f frame.ParsedFrame, expectedBehaviors []string, referenceEmbedding embedding.Vector) {
	s.mu.Lock()
	defer s.mu.Unlock()

	behaviors := make(map[string]bool, len(expectedBehaviors))
	for _, b := range expectedBehaviors {
		behaviors[canonical(b)] = true
	}

	now := time.Now()
	k := key(agentID, f.IntentHash)
	if existing, ok := s.records[k]; ok {
		existing.ExpectedBehaviors = behaviors
		existing.ReferenceEmbedding = referenceEmbedding
		existing.LastSeenAt = now
		return
	}
	s.records[k] = &Record{
		AgentID:            agentID,
		IntentHash:         f.IntentHash,
		ExpectedBehaviors:  behaviors,
		ReferenceEmbedding: referenceEmbedding,
		CreatedAt:          now,
		LastSeenAt:         now,
	}
}

// Get returns the stored baseline for (agentID, intentHash), if any.
func (s *Store) Get(agentID, intentHash string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key(agentID, intentHash)]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// Compare measures drift between an observation and the stored baseline for
// (agentID, frame.IntentHash). When no baseline exists, HasBaseline is false
// and DriftScore is 0 — absence of a baseline is not itself evidence of drift.
func (s *Store) Compare(agentID string, f frame.ParsedFrame, observedBehaviors []string, observedEmbedding embedding.Vector) CompareResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(agentID, f.IntentHash)
	rec, ok := s.records[k]
	if !ok {
		return CompareResult{}
	}
	rec.LastSeenAt = time.Now()

	return compareRecord(rec, observedBehaviors, observedEmbedding)
}

// compareRecord implements the weighted drift comparison shared by every
// Store implementation, in-memory or persistent, so the scoring semantics
// never drift between backends.
func compareRecord(rec *Record, observedBehaviors []string, observedEmbedding embedding.Vector) CompareResult {
	observed := make(map[string]bool, len(observedBehaviors))
	for _, b := range observedBehaviors {
		observed[canonical(b)] = true
	}

	var missing, extra []string
	for b := range rec.ExpectedBehaviors {
		if !observed[b] {
			missing = append(missing, b)
		}
	}
	for b := range observed {
		if !rec.ExpectedBehaviors[b] {
			extra = append(extra, b)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	union := len(rec.ExpectedBehaviors)
	for b := range observed {
		if !rec.ExpectedBehaviors[b] {
			union++
		}
	}
	behaviorRatio := 0.0
	if union > 0 {
		behaviorRatio = float64(len(missing)+len(extra)) / float64(union)
	}

	embDist := embedding.CosineDistance(rec.ReferenceEmbedding, observedEmbedding)

	drift := behaviorWeight*behaviorRatio + embeddingWeight*embDist
	if drift > 1 {
		drift = 1
	}

	return CompareResult{
		HasBaseline:       true,
		DriftScore:        drift,
		MissingBehaviors:  missing,
		ExtraBehaviors:    extra,
		EmbeddingDistance: embDist,
	}
}

// ClearAgent removes every baseline stored for agentID.
func (s *Store) ClearAgent(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := agentID + ":"
	for k := range s.records {
		if strings.HasPrefix(k, prefix) {
			delete(s.records, k)
		}
	}
}

// ClearAll removes every stored baseline.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
}

// Snapshot returns every stored baseline in the bulk wire format, for a
// persistence collaborator to serialize.
func (s *Store) Snapshot() []SnapshotRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SnapshotRecord, 0, len(s.records))
	for _, r := range s.records {
		behaviors := make([]string, 0, len(r.ExpectedBehaviors))
		for b := range r.ExpectedBehaviors {
			behaviors = append(behaviors, b)
		}
		sort.Strings(behaviors)
		out = append(out, SnapshotRecord{
			AgentID:            r.AgentID,
			IntentHash:         r.IntentHash,
			ExpectedBehaviors:  behaviors,
			ReferenceEmbedding: []float64(r.ReferenceEmbedding),
			CreatedAt:          r.CreatedAt,
			LastSeenAt:         r.LastSeenAt,
		})
	}
	return out
}

// LoadSnapshot atomically replaces the store's contents with records. No
// partial state is observable to concurrent readers: the swap happens under
// a single write lock. A record whose IntentHash is not well-formed (e.g. a
// snapshot written by an incompatible version) is skipped and logged rather
// than corrupting the in-memory index.
func (s *Store) LoadSnapshot(records []SnapshotRecord) {
	next := make(map[string]*Record, len(records))
	for _, r := range records {
		if err := frame.ValidateHash(r.IntentHash); err != nil {
			slog.Warn("baseline: skipping snapshot record", "agent_id", r.AgentID, "error", err)
			continue
		}
		behaviors := make(map[string]bool, len(r.ExpectedBehaviors))
		for _, b := range r.ExpectedBehaviors {
			behaviors[b] = true
		}
		next[key(r.AgentID, r.IntentHash)] = &Record{
			AgentID:            r.AgentID,
			IntentHash:         r.IntentHash,
			ExpectedBehaviors:  behaviors,
			ReferenceEmbedding: embedding.Vector(r.ReferenceEmbedding),
			CreatedAt:          r.CreatedAt,
			LastSeenAt:         r.LastSeenAt,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
