package store

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store used in tests and when no database is
// configured.
type Memory struct {
	mu     sync.RWMutex
	calls  map[string]*CallRecord
	order  []string // insertion order of call SIDs
	chunks []KnowledgeChunk
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{calls: make(map[string]*CallRecord)}
}

func (m *Memory) UpsertCall(ctx context.Context, callSID string, fields CallFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.calls[callSID]
	if !ok {
		rec = &CallRecord{CallSID: callSID}
		m.calls[callSID] = rec
		m.order = append(m.order, callSID)
	}

	if fields.FromNumber != nil {
		rec.FromNumber = *fields.FromNumber
	}
	if fields.ToNumber != nil {
		rec.ToNumber = *fields.ToNumber
	}
	if fields.Direction != nil {
		rec.Direction = *fields.Direction
	}
	if fields.Status != nil {
		rec.Status = *fields.Status
	}
	if fields.StartTime != nil {
		rec.StartTime = *fields.StartTime
	}
	if fields.EndTime != nil {
		rec.EndTime = fields.EndTime
	}
	if fields.Duration != nil {
		rec.Duration = *fields.Duration
	}
	if fields.Transcription != nil {
		rec.Transcription = *fields.Transcription
	}
	if fields.Summary != nil {
		rec.Summary = *fields.Summary
	}
	if fields.EndReason != nil {
		rec.EndReason = *fields.EndReason
	}
	if fields.AgentHungUp != nil {
		rec.AgentHungUp = *fields.AgentHungUp
	}
	return nil
}

func (m *Memory) GetCall(ctx context.Context, callSID string) (*CallRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.calls[callSID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *Memory) ListCalls(ctx context.Context, filter ListFilter) ([]CallRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []CallRecord
	// Newest first: walk insertion order backwards.
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.calls[m.order[i]]
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		matched = append(matched, *rec)
	}

	total := len(matched)
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start >= total {
		return []CallRecord{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// AddKnowledge inserts a chunk; used by tests and local seeding.
func (m *Memory) AddKnowledge(chunk KnowledgeChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk.ID = int64(len(m.chunks) + 1)
	m.chunks = append(m.chunks, chunk)
}

func (m *Memory) SearchKnowledge(ctx context.Context, embedding []float32, k int) ([]KnowledgeChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		chunk KnowledgeChunk
		score float64
	}
	var candidates []scored
	for _, chunk := range m.chunks {
		candidates = append(candidates, scored{chunk, CosineSimilarity(embedding, chunk.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]KnowledgeChunk, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, c.chunk)
	}
	return out, nil
}

func (m *Memory) Close() {}

// CosineSimilarity ranks knowledge chunks against a query embedding.
// Mismatched or empty vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
