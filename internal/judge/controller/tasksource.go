package controller

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"jjsgo/internal/judge/worker"
)

// FinishReason mirrors original_source's InvocationFinishReason: the
// three ways a judge request can conclude.
type FinishReason int

const (
	FinishFault FinishReason = iota
	FinishCompileError
	FinishTestingDone
)

// LiveStatusUpdate is a lightweight progress notification, grounded on
// controller.rs's Notifier (set_score/set_test): the Controller pushes
// one per live test-started or live-score event the Worker reports.
type LiveStatusUpdate struct {
	TestID int  `json:"test_id,omitempty"`
	Score  *int `json:"score,omitempty"`
}

// TaskSource is the lifecycle-callback boundary controller.rs calls
// JudgeResponseCallbacks: whoever handed the Controller a JudgeRequest
// gets these three calls back, in order, over the course of judging it.
// Two adapters satisfy it (spec §13): an in-memory one for tests, and a
// Kafka-backed one (kafka_tasksource.go) for production — the exec loop
// never branches on which.
type TaskSource interface {
	SetFinished(ctx context.Context, requestID uuid.UUID, reason FinishReason) error
	AddOutcomeHeader(ctx context.Context, requestID uuid.UUID, header worker.OutcomeHeader) error
	DeliverLiveStatusUpdate(ctx context.Context, requestID uuid.UUID, update LiveStatusUpdate) error
}

// InMemoryTaskSource records every callback in memory, keyed by request
// id. Package tests use it in place of a real transport, and
// cmd/jjs-judged keeps one as the local mirror behind its HTTP status API.
type InMemoryTaskSource struct {
	mu        sync.Mutex
	finished  map[uuid.UUID]FinishReason
	headers   map[uuid.UUID][]worker.OutcomeHeader
	liveUpds  map[uuid.UUID][]LiveStatusUpdate
}

func NewInMemoryTaskSource() *InMemoryTaskSource {
	return &InMemoryTaskSource{
		finished: make(map[uuid.UUID]FinishReason),
		headers:  make(map[uuid.UUID][]worker.OutcomeHeader),
		liveUpds: make(map[uuid.UUID][]LiveStatusUpdate),
	}
}

func (s *InMemoryTaskSource) SetFinished(_ context.Context, requestID uuid.UUID, reason FinishReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[requestID] = reason
	return nil
}

func (s *InMemoryTaskSource) AddOutcomeHeader(_ context.Context, requestID uuid.UUID, header worker.OutcomeHeader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers[requestID] = append(s.headers[requestID], header)
	return nil
}

func (s *InMemoryTaskSource) DeliverLiveStatusUpdate(_ context.Context, requestID uuid.UUID, update LiveStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveUpds[requestID] = append(s.liveUpds[requestID], update)
	return nil
}

// Finished reports whether SetFinished has been called for requestID,
// and with what reason.
func (s *InMemoryTaskSource) Finished(requestID uuid.UUID) (FinishReason, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.finished[requestID]
	return reason, ok
}

// OutcomeHeaders returns every header recorded for requestID, in
// delivery order.
func (s *InMemoryTaskSource) OutcomeHeaders(requestID uuid.UUID) []worker.OutcomeHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]worker.OutcomeHeader(nil), s.headers[requestID]...)
}

// mirroredTaskSource forwards every callback to primary (the real
// transport, e.g. Kafka) and also records it in mirror, so a local HTTP
// status query can answer without depending on the transport's own
// read path.
type mirroredTaskSource struct {
	primary TaskSource
	mirror  *InMemoryTaskSource
}

func (m *mirroredTaskSource) SetFinished(ctx context.Context, requestID uuid.UUID, reason FinishReason) error {
	_ = m.mirror.SetFinished(ctx, requestID, reason)
	return m.primary.SetFinished(ctx, requestID, reason)
}

func (m *mirroredTaskSource) AddOutcomeHeader(ctx context.Context, requestID uuid.UUID, header worker.OutcomeHeader) error {
	_ = m.mirror.AddOutcomeHeader(ctx, requestID, header)
	return m.primary.AddOutcomeHeader(ctx, requestID, header)
}

func (m *mirroredTaskSource) DeliverLiveStatusUpdate(ctx context.Context, requestID uuid.UUID, update LiveStatusUpdate) error {
	_ = m.mirror.DeliverLiveStatusUpdate(ctx, requestID, update)
	return m.primary.DeliverLiveStatusUpdate(ctx, requestID, update)
}
