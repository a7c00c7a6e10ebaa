// Package worker implements the Worker subprocess (spec §4.2): it owns one
// judge request end-to-end over newline-delimited JSON on stdin/stdout,
// grounded in the teacher's judge_service/internal/sandbox/worker.go
// Execute-method shape, generalized to the spec's compile/valuer/checker
// pipeline instead of the teacher's single compile+run-tests loop.
package worker

import (
	"jjsgo/internal/judge/model"
	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
)

// RequestKind tags the controller->worker message.
type RequestKind string

const RequestJudge RequestKind = "judge"

// Request is one frame read from the Worker's stdin.
type Request struct {
	Kind  RequestKind             `json:"kind"`
	Judge *model.LoweredJudgeRequest `json:"judge,omitempty"`
}

// ResponseKind tags the worker->controller message.
type ResponseKind string

const (
	RespJudgeDone     ResponseKind = "judge_done"
	RespOutcomeHeader ResponseKind = "outcome_header"
	RespLiveTest      ResponseKind = "live_test"
	RespLiveScore     ResponseKind = "live_score"
)

// OutcomeHeader summarizes one finalized judge log for the controller,
// spec §4.2 ("Response kinds ... OutcomeHeader(JudgeOutcomeHeader)").
type OutcomeHeader struct {
	Kind   valuer.Kind   `json:"kind"`
	Score  int           `json:"score"`
	Status status.Status `json:"status"`
}

// Response is one frame written to the Worker's stdout. Exactly one
// RespJudgeDone is sent per Judge request, always last.
type Response struct {
	Kind          ResponseKind   `json:"kind"`
	JudgeDone     *status.JudgeDone `json:"judge_done,omitempty"`
	OutcomeHeader *OutcomeHeader `json:"outcome_header,omitempty"`
	TestID        int            `json:"test_id,omitempty"`
	Score         int            `json:"score,omitempty"`
}
