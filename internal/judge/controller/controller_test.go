package controller

import (
	"testing"

	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/worker"
)

func TestJudgeDoneReason(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		resp worker.Response
		want FinishReason
	}{
		{name: "nil JudgeDone is a fault", resp: worker.Response{}, want: FinishFault},
		{name: "compile error", resp: worker.Response{JudgeDone: &status.JudgeDone{Kind: status.DoneCompileError}}, want: FinishCompileError},
		{name: "testing done", resp: worker.Response{JudgeDone: &status.JudgeDone{Kind: status.DoneTestingDone}}, want: FinishTestingDone},
		{name: "explicit fault kind", resp: worker.Response{JudgeDone: &status.JudgeDone{Kind: status.DoneFault}}, want: FinishFault},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := judgeDoneReason(tc.resp); got != tc.want {
				t.Fatalf("judgeDoneReason() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFinishReasonName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		reason FinishReason
		want   string
	}{
		{reason: FinishCompileError, want: "compile_error"},
		{reason: FinishTestingDone, want: "testing_done"},
		{reason: FinishFault, want: "fault"},
		{reason: FinishReason(99), want: "fault"},
	}
	for _, tc := range tests {
		if got := finishReasonName(tc.reason); got != tc.want {
			t.Fatalf("finishReasonName(%v) = %q, want %q", tc.reason, got, tc.want)
		}
	}
}
