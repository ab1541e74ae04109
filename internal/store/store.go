// Package store persists call records and the knowledge base. The bridge
// treats every store call as best-effort: failures are logged by the
// caller and never abort or retry a live call.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no record exists for the given call id.
var ErrNotFound = errors.New("call record not found")

// CallFields is a partial update for one call record. Nil fields are
// left untouched, making UpsertCall idempotent per lifecycle milestone.
type CallFields struct {
	FromNumber    *string
	ToNumber      *string
	Direction     *string
	Status        *string
	StartTime     *time.Time
	EndTime       *time.Time
	Duration      *int // seconds
	Transcription *string
	Summary       *string
	EndReason     *string
	AgentHungUp   *bool
}

// CallRecord is one row of call history.
type CallRecord struct {
	CallSID       string    `json:"call_sid"`
	FromNumber    string    `json:"from_number"`
	ToNumber      string    `json:"to_number"`
	Direction     string    `json:"direction"`
	Status        string    `json:"status"`
	StartTime     time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Duration      int       `json:"duration"`
	Transcription string    `json:"transcription,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	EndReason     string    `json:"end_reason,omitempty"`
	AgentHungUp   bool      `json:"agent_hung_up"`
}

// ListFilter selects a page of call history.
type ListFilter struct {
	Status string // empty matches all
	Page   int    // 1-based
	Limit  int
}

// KnowledgeChunk is one retrievable snippet of the knowledge base.
type KnowledgeChunk struct {
	ID        int64
	Source    string
	Content   string
	Embedding []float32
}

// Store is the call record and knowledge persistence contract.
type Store interface {
	// UpsertCall inserts or partially updates the record keyed by callSID.
	UpsertCall(ctx context.Context, callSID string, fields CallFields) error

	// GetCall returns one record or ErrNotFound.
	GetCall(ctx context.Context, callSID string) (*CallRecord, error)

	// ListCalls returns a page of records, newest first, plus the total count.
	ListCalls(ctx context.Context, filter ListFilter) ([]CallRecord, int, error)

	// SearchKnowledge returns the k chunks most similar to the embedding.
	SearchKnowledge(ctx context.Context, embedding []float32, k int) ([]KnowledgeChunk, error)

	Close()
}

// String returns a pointer to s, for CallFields literals.
func String(s string) *string { return &s }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Time returns a pointer to t.
func Time(t time.Time) *time.Time { return &t }
