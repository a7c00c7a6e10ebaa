package controller

import (
	"context"
	"encoding/json"

	"jjsgo/internal/common/mq"
	"jjsgo/internal/judge/model"
	pkgerrors "jjsgo/pkg/errors"
)

// ServiceContext bundles the shared dependencies a judge Logic needs to
// run, in the shape goctl generates for a go-zero service (svc.go) minus
// the sqlx/rest layers this core has no use for: no database, no REST
// client, just the Controller and the queue its TaskSource publishes
// status updates back through.
type ServiceContext struct {
	Controller  *Controller
	Queue       mq.MessageQueue
	StatusTopic string
	// StatusStore mirrors every callback locally so the HTTP status
	// surface (spec §11) can answer queries without round-tripping
	// through Kafka; it is wired in addition to, not instead of, the
	// published status events.
	StatusStore *InMemoryTaskSource
}

func NewServiceContext(c *Controller, queue mq.MessageQueue, statusTopic string, statusStore *InMemoryTaskSource) *ServiceContext {
	return &ServiceContext{Controller: c, Queue: queue, StatusTopic: statusTopic, StatusStore: statusStore}
}

// JudgeConsumerLogic handles one incoming judge-request message. Shaped
// like a goctl-generated Logic (ctx/svcCtx fields, one exported entry
// point), reused here for a Kafka consumer callback instead of an RPC
// handler, per SPEC_FULL.md §11's note that the go-zero scaffolding
// idiom is kept without its database dependency.
type JudgeConsumerLogic struct {
	ctx    context.Context
	svcCtx *ServiceContext
}

func NewJudgeConsumerLogic(ctx context.Context, svcCtx *ServiceContext) *JudgeConsumerLogic {
	return &JudgeConsumerLogic{ctx: ctx, svcCtx: svcCtx}
}

// Handle decodes msg into a model.JudgeRequest and drives it through the
// Controller, publishing lifecycle callbacks back on the status topic.
func (l *JudgeConsumerLogic) Handle(msg *mq.Message) error {
	var req model.JudgeRequest
	if err := json.Unmarshal(msg.Body, &req); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "decode judge request message")
	}
	ts := TaskSource(&KafkaTaskSource{Queue: l.svcCtx.Queue, StatusTopic: l.svcCtx.StatusTopic})
	if l.svcCtx.StatusStore != nil {
		ts = &mirroredTaskSource{primary: ts, mirror: l.svcCtx.StatusStore}
	}
	return l.svcCtx.Controller.ProcessRequest(l.ctx, &req, ts)
}

// Subscribe starts consuming judge requests from topic, constructing a
// fresh JudgeConsumerLogic per message the way a goctl-scaffolded
// consumer's main loop does per RPC call.
func Subscribe(ctx context.Context, svcCtx *ServiceContext, topic string, opts *mq.SubscribeOptions) error {
	handler := func(hctx context.Context, msg *mq.Message) error {
		return NewJudgeConsumerLogic(hctx, svcCtx).Handle(msg)
	}
	if opts != nil {
		return svcCtx.Queue.SubscribeWithOptions(ctx, topic, handler, opts)
	}
	return svcCtx.Queue.Subscribe(ctx, topic, handler)
}
