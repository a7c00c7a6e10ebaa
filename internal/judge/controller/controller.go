package controller

import (
	"context"
	"runtime"

	"github.com/google/uuid"

	"jjsgo/internal/judge/model"
	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/worker"
	pkgerrors "jjsgo/pkg/errors"
	"jjsgo/pkg/utils/logger"

	"go.uber.org/zap"
)

// Config is the Controller's dependency-injection bundle, assembled by
// cmd/jjs-judged/main.go the way the teacher's cmd/judge-service/main.go
// assembles service.Config.
type Config struct {
	// WorkerCount is the size of the worker-process pool. Zero selects
	// runtime.NumCPU(), matching controller.rs's num_cpus::get() default
	// (spec §13).
	WorkerCount      int
	WorkerBinaryPath string
	ScratchDir       string
	InvokerID        string

	ProblemLoader   model.ProblemLoader
	ToolchainLoader model.ToolchainLoader
}

// Controller is the heart of the judge service (spec §1): it receives
// JudgeRequests, lowers them, dispatches them into the worker pool, and
// reports outcomes through whichever TaskSource handed it the request.
type Controller struct {
	pool            *Pool
	problemLoader   model.ProblemLoader
	toolchainLoader model.ToolchainLoader
	scratchDir      string
	invokerID       string
}

// New starts the worker pool and wires the loaders. It does not start
// consuming tasks; callers drive requests in through ProcessRequest
// (directly, or via a TaskSource adapter's own run loop).
func New(cfg Config) (*Controller, error) {
	if cfg.ProblemLoader == nil || cfg.ToolchainLoader == nil {
		return nil, pkgerrors.New(pkgerrors.InternalServerError).WithMessage("controller: both loaders are required")
	}
	workerCount := cfg.WorkerCount
	if workerCount == 0 {
		workerCount = runtime.NumCPU()
	}
	pool, err := NewPool(workerCount, cfg.WorkerBinaryPath)
	if err != nil {
		return nil, err
	}
	invokerID := cfg.InvokerID
	if invokerID == "" {
		invokerID = "w"
	}
	return &Controller{
		pool:            pool,
		problemLoader:   cfg.ProblemLoader,
		toolchainLoader: cfg.ToolchainLoader,
		scratchDir:      cfg.ScratchDir,
		invokerID:       invokerID,
	}, nil
}

// Close stops every worker subprocess. The Controller must not be used
// afterwards.
func (c *Controller) Close() {
	c.pool.Close()
}

// ProcessRequest drives one judge request's full lifecycle: lower,
// dispatch to a free worker slot, and relay every event to ts, exactly
// mirroring controller.rs's process_request event loop (JudgeDone,
// LiveScore, LiveTest, OutcomeHeader) translated onto the Go Pool/
// TaskSource shapes. A returned error is a judge-system fault: a lowering
// failure, ctx cancelled while waiting for a free slot, or a worker slot
// whose stream broke (write, read or decode failure) before it sent
// RespJudgeDone; SetFinished(Fault) is published to ts before returning
// it. A fault the worker reports itself arrives as RespJudgeDone(Fault),
// is relayed as SetFinished(Fault), and returns nil.
func (c *Controller) ProcessRequest(ctx context.Context, req *model.JudgeRequest, ts TaskSource) error {
	low, err := c.lowerJudgeRequest(req)
	if err != nil {
		logger.Error(ctx, "failed to lower judge request", zap.String("request_id", req.RequestID.String()), zap.Error(err))
		if setErr := ts.SetFinished(ctx, req.RequestID, FinishFault); setErr != nil {
			logger.Warn(ctx, "failed to publish fault finish", zap.Error(setErr))
		}
		return err
	}

	err = c.pool.Judge(ctx, low, func(resp worker.Response) {
		c.relay(ctx, req.RequestID, resp, ts)
	})
	if err != nil {
		logger.Warn(ctx, "worker pool judge failed", zap.String("request_id", req.RequestID.String()), zap.Error(err))
		if setErr := ts.SetFinished(ctx, req.RequestID, FinishFault); setErr != nil {
			logger.Warn(ctx, "failed to publish fault finish", zap.Error(setErr))
		}
		return err
	}
	return nil
}

func (c *Controller) relay(ctx context.Context, requestID uuid.UUID, resp worker.Response, ts TaskSource) {
	switch resp.Kind {
	case worker.RespOutcomeHeader:
		if resp.OutcomeHeader != nil {
			if err := ts.AddOutcomeHeader(ctx, requestID, *resp.OutcomeHeader); err != nil {
				logger.Warn(ctx, "failed to publish outcome header", zap.Error(err))
			}
		}
	case worker.RespLiveTest:
		testID := resp.TestID
		if err := ts.DeliverLiveStatusUpdate(ctx, requestID, LiveStatusUpdate{TestID: testID}); err != nil {
			logger.Warn(ctx, "failed to publish live test update", zap.Error(err))
		}
	case worker.RespLiveScore:
		score := resp.Score
		if err := ts.DeliverLiveStatusUpdate(ctx, requestID, LiveStatusUpdate{Score: &score}); err != nil {
			logger.Warn(ctx, "failed to publish live score update", zap.Error(err))
		}
	case worker.RespJudgeDone:
		if err := ts.SetFinished(ctx, requestID, judgeDoneReason(resp)); err != nil {
			logger.Warn(ctx, "failed to publish finish", zap.Error(err))
		}
	}
}

// judgeDoneReason translates a Worker's terminal JudgeDone kind onto the
// Controller's FinishReason, mirroring controller.rs's JudgeOutcome ->
// InvocationFinishReason match.
func judgeDoneReason(resp worker.Response) FinishReason {
	if resp.JudgeDone == nil {
		return FinishFault
	}
	switch resp.JudgeDone.Kind {
	case status.DoneCompileError:
		return FinishCompileError
	case status.DoneTestingDone:
		return FinishTestingDone
	default:
		return FinishFault
	}
}
