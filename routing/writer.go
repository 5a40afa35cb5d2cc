package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// WriterSink serializes payloads as JSON lines to a writer. It implements
// both sink interfaces, which makes it the default handoff for CLI runs
// where the collaborators read from a file or pipe.
//
// Thread Safety: safe for concurrent use.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// envelope tags each emitted line with its payload kind.
type envelope struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

// NewWriterSink creates a sink writing JSON lines to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// SubmitPlan writes one orchestration plan line.
func (s *WriterSink) SubmitPlan(_ context.Context, plan *OrchestrationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(envelope{Kind: "orchestration_plan", Payload: plan}); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return nil
}

// SubmitReview writes one review package line.
func (s *WriterSink) SubmitReview(_ context.Context, pkg *ReviewPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(envelope{Kind: "review_package", Payload: pkg}); err != nil {
		return fmt.Errorf("encode review: %w", err)
	}
	return nil
}
