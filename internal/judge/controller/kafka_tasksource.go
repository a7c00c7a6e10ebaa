package controller

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"jjsgo/internal/common/mq"
	"jjsgo/internal/judge/worker"
	pkgerrors "jjsgo/pkg/errors"
)

// statusEvent is the wire shape published on the status-update companion
// topic, one message per TaskSource callback — the production analogue
// of controller.rs's Notifier/JudgeResponseCallbacks, but over Kafka
// instead of an in-process trait object.
type statusEvent struct {
	RequestID uuid.UUID            `json:"request_id"`
	Kind      string               `json:"kind"`
	Finish    *FinishReason        `json:"finish,omitempty"`
	Header    *worker.OutcomeHeader `json:"header,omitempty"`
	Live      *LiveStatusUpdate    `json:"live,omitempty"`
}

// KafkaTaskSource publishes TaskSource callbacks as JSON messages on a
// status topic, reusing internal/common/mq.MessageQueue the same way
// judge_service.go's Service publishes through its queue field.
type KafkaTaskSource struct {
	Queue       mq.MessageQueue
	StatusTopic string
}

func (k *KafkaTaskSource) publish(ctx context.Context, ev statusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.InternalServerError)
	}
	return k.Queue.Publish(ctx, k.StatusTopic, mq.NewMessage(body))
}

func (k *KafkaTaskSource) SetFinished(ctx context.Context, requestID uuid.UUID, reason FinishReason) error {
	r := reason
	return k.publish(ctx, statusEvent{RequestID: requestID, Kind: "finished", Finish: &r})
}

func (k *KafkaTaskSource) AddOutcomeHeader(ctx context.Context, requestID uuid.UUID, header worker.OutcomeHeader) error {
	return k.publish(ctx, statusEvent{RequestID: requestID, Kind: "outcome_header", Header: &header})
}

func (k *KafkaTaskSource) DeliverLiveStatusUpdate(ctx context.Context, requestID uuid.UUID, update LiveStatusUpdate) error {
	return k.publish(ctx, statusEvent{RequestID: requestID, Kind: "live_status", Live: &update})
}
