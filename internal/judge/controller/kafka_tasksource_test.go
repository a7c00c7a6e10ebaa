package controller

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"jjsgo/internal/common/mq"
	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
	"jjsgo/internal/judge/worker"
)

// fakeQueue is a minimal in-memory mq.MessageQueue, in the same shape as
// the teacher's own test fakes (publish-and-record, no real transport).
type fakeQueue struct {
	topic string
	msgs  []*mq.Message
}

func (f *fakeQueue) Publish(_ context.Context, topic string, message *mq.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, message)
	return nil
}

func (f *fakeQueue) PublishBatch(_ context.Context, topic string, messages []*mq.Message) error {
	for _, m := range messages {
		_ = f.Publish(context.Background(), topic, m)
	}
	return nil
}

func (f *fakeQueue) Subscribe(context.Context, string, mq.HandlerFunc) error { return nil }
func (f *fakeQueue) SubscribeWithOptions(context.Context, string, mq.HandlerFunc, *mq.SubscribeOptions) error {
	return nil
}
func (f *fakeQueue) Start() error                      { return nil }
func (f *fakeQueue) Stop() error                       { return nil }
func (f *fakeQueue) Pause() error                      { return nil }
func (f *fakeQueue) Resume() error                     { return nil }
func (f *fakeQueue) Ping(context.Context) error         { return nil }
func (f *fakeQueue) Close() error                       { return nil }

func TestKafkaTaskSourcePublishesStatusEvents(t *testing.T) {
	t.Parallel()
	q := &fakeQueue{}
	k := &KafkaTaskSource{Queue: q, StatusTopic: "judge.status"}
	reqID := uuid.New()

	if err := k.SetFinished(context.Background(), reqID, FinishCompileError); err != nil {
		t.Fatalf("SetFinished: %v", err)
	}
	header := worker.OutcomeHeader{Kind: valuer.Full, Score: 80, Status: status.Status{Kind: status.Accepted, Code: status.AcceptedCode}}
	if err := k.AddOutcomeHeader(context.Background(), reqID, header); err != nil {
		t.Fatalf("AddOutcomeHeader: %v", err)
	}
	score := 42
	if err := k.DeliverLiveStatusUpdate(context.Background(), reqID, LiveStatusUpdate{Score: &score}); err != nil {
		t.Fatalf("DeliverLiveStatusUpdate: %v", err)
	}

	if q.topic != "judge.status" {
		t.Fatalf("published topic = %q, want judge.status", q.topic)
	}
	if len(q.msgs) != 3 {
		t.Fatalf("got %d published messages, want 3", len(q.msgs))
	}

	var finishEv statusEvent
	if err := json.Unmarshal(q.msgs[0].Body, &finishEv); err != nil {
		t.Fatalf("decode finish event: %v", err)
	}
	if finishEv.RequestID != reqID || finishEv.Kind != "finished" || finishEv.Finish == nil || *finishEv.Finish != FinishCompileError {
		t.Fatalf("finish event = %+v", finishEv)
	}

	var headerEv statusEvent
	if err := json.Unmarshal(q.msgs[1].Body, &headerEv); err != nil {
		t.Fatalf("decode header event: %v", err)
	}
	if headerEv.Kind != "outcome_header" || headerEv.Header == nil || headerEv.Header.Score != 80 {
		t.Fatalf("header event = %+v", headerEv)
	}

	var liveEv statusEvent
	if err := json.Unmarshal(q.msgs[2].Body, &liveEv); err != nil {
		t.Fatalf("decode live event: %v", err)
	}
	if liveEv.Kind != "live_status" || liveEv.Live == nil || liveEv.Live.Score == nil || *liveEv.Live.Score != 42 {
		t.Fatalf("live event = %+v", liveEv)
	}
}
