package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
	"jjsgo/internal/judge/worker"
)

func TestInMemoryTaskSourceRecordsCallbacks(t *testing.T) {
	t.Parallel()
	ts := NewInMemoryTaskSource()
	reqID := uuid.New()

	if _, ok := ts.Finished(reqID); ok {
		t.Fatalf("a fresh InMemoryTaskSource must report unfinished")
	}

	header := worker.OutcomeHeader{Kind: valuer.Contestant, Score: 50, Status: status.Status{Kind: status.Accepted, Code: status.AcceptedCode}}
	if err := ts.AddOutcomeHeader(context.Background(), reqID, header); err != nil {
		t.Fatalf("AddOutcomeHeader: %v", err)
	}
	if err := ts.DeliverLiveStatusUpdate(context.Background(), reqID, LiveStatusUpdate{TestID: 3}); err != nil {
		t.Fatalf("DeliverLiveStatusUpdate: %v", err)
	}
	if err := ts.SetFinished(context.Background(), reqID, FinishTestingDone); err != nil {
		t.Fatalf("SetFinished: %v", err)
	}

	reason, ok := ts.Finished(reqID)
	if !ok || reason != FinishTestingDone {
		t.Fatalf("Finished() = (%v, %v), want (FinishTestingDone, true)", reason, ok)
	}
	headers := ts.OutcomeHeaders(reqID)
	if len(headers) != 1 || headers[0] != header {
		t.Fatalf("OutcomeHeaders() = %v, want [%v]", headers, header)
	}
}

// fakeTaskSource lets the mirroredTaskSource tests observe what reaches
// the "primary" transport independently of the in-memory mirror.
type fakeTaskSource struct {
	finishCalls int
	lastReason  FinishReason
	failNext    bool
}

func (f *fakeTaskSource) SetFinished(_ context.Context, _ uuid.UUID, reason FinishReason) error {
	f.finishCalls++
	f.lastReason = reason
	if f.failNext {
		return errors.New("primary unavailable")
	}
	return nil
}

func (f *fakeTaskSource) AddOutcomeHeader(context.Context, uuid.UUID, worker.OutcomeHeader) error {
	return nil
}

func (f *fakeTaskSource) DeliverLiveStatusUpdate(context.Context, uuid.UUID, LiveStatusUpdate) error {
	return nil
}

func TestMirroredTaskSourceFansOutToBoth(t *testing.T) {
	t.Parallel()
	mirror := NewInMemoryTaskSource()
	primary := &fakeTaskSource{}
	m := &mirroredTaskSource{primary: primary, mirror: mirror}
	reqID := uuid.New()

	if err := m.SetFinished(context.Background(), reqID, FinishCompileError); err != nil {
		t.Fatalf("SetFinished: %v", err)
	}

	if primary.finishCalls != 1 || primary.lastReason != FinishCompileError {
		t.Fatalf("primary did not observe the call: %+v", primary)
	}
	if reason, ok := mirror.Finished(reqID); !ok || reason != FinishCompileError {
		t.Fatalf("mirror did not record the call: reason=%v ok=%v", reason, ok)
	}
}

func TestMirroredTaskSourcePropagatesPrimaryError(t *testing.T) {
	t.Parallel()
	mirror := NewInMemoryTaskSource()
	primary := &fakeTaskSource{failNext: true}
	m := &mirroredTaskSource{primary: primary, mirror: mirror}
	reqID := uuid.New()

	err := m.SetFinished(context.Background(), reqID, FinishFault)
	if err == nil {
		t.Fatalf("expected the primary's error to propagate")
	}
	// The mirror must still have recorded the call even though primary failed.
	if _, ok := mirror.Finished(reqID); !ok {
		t.Fatalf("mirror must record the callback even when primary fails")
	}
}
