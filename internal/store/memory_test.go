package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestMemoryUpsertPartial(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	m := NewMemory()

	start := time.Now().UTC()
	is.NoErr(m.UpsertCall(ctx, "CA1", CallFields{
		FromNumber: String("+15551234567"),
		Direction:  String("inbound"),
		Status:     String("in-progress"),
		StartTime:  Time(start),
	}))

	// Second upsert only touches end-of-call fields.
	is.NoErr(m.UpsertCall(ctx, "CA1", CallFields{
		Status:      String("completed"),
		Duration:    Int(42),
		EndReason:   String("remote_hangup"),
		AgentHungUp: Bool(false),
	}))

	rec, err := m.GetCall(ctx, "CA1")
	is.NoErr(err)
	is.Equal(rec.FromNumber, "+15551234567") // start-time fields survive the second upsert
	is.Equal(rec.Status, "completed")
	is.Equal(rec.Duration, 42)
	is.Equal(rec.EndReason, "remote_hangup")
}

func TestMemoryGetMissing(t *testing.T) {
	is := is.New(t)

	_, err := NewMemory().GetCall(context.Background(), "CAnone")
	is.True(errors.Is(err, ErrNotFound))
}

func TestMemoryListCalls(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	m := NewMemory()

	for _, c := range []struct{ sid, status string }{
		{"CA1", "completed"},
		{"CA2", "failed"},
		{"CA3", "completed"},
		{"CA4", "completed"},
	} {
		is.NoErr(m.UpsertCall(ctx, c.sid, CallFields{Status: String(c.status)}))
	}

	all, total, err := m.ListCalls(ctx, ListFilter{})
	is.NoErr(err)
	is.Equal(total, 4)
	is.Equal(all[0].CallSID, "CA4") // newest first

	completed, total, err := m.ListCalls(ctx, ListFilter{Status: "completed"})
	is.NoErr(err)
	is.Equal(total, 3)
	is.Equal(len(completed), 3)

	page, total, err := m.ListCalls(ctx, ListFilter{Status: "completed", Page: 2, Limit: 2})
	is.NoErr(err)
	is.Equal(total, 3)
	is.Equal(len(page), 1)
	is.Equal(page[0].CallSID, "CA1")

	empty, _, err := m.ListCalls(ctx, ListFilter{Page: 10, Limit: 50})
	is.NoErr(err)
	is.Equal(len(empty), 0)
}

func TestMemorySearchKnowledge(t *testing.T) {
	is := is.New(t)
	m := NewMemory()

	m.AddKnowledge(KnowledgeChunk{Content: "pricing", Embedding: []float32{1, 0, 0}})
	m.AddKnowledge(KnowledgeChunk{Content: "support hours", Embedding: []float32{0, 1, 0}})
	m.AddKnowledge(KnowledgeChunk{Content: "pricing details", Embedding: []float32{0.9, 0.1, 0}})

	chunks, err := m.SearchKnowledge(context.Background(), []float32{1, 0, 0}, 2)
	is.NoErr(err)
	is.Equal(len(chunks), 2)
	is.Equal(chunks[0].Content, "pricing")
	is.Equal(chunks[1].Content, "pricing details")
}

func TestCosineSimilarity(t *testing.T) {
	is := is.New(t)

	is.Equal(CosineSimilarity([]float32{1, 0}, []float32{1, 0}), 1.0)
	is.Equal(CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0)
	is.Equal(CosineSimilarity(nil, []float32{1}), 0.0)
	is.Equal(CosineSimilarity([]float32{1, 2}, []float32{1}), 0.0) // mismatched lengths
}
