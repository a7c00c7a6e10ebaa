package status

import (
	"testing"

	"jjsgo/internal/sandbox/result"
)

func TestFromExit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		exitCode    int
		watchdog    result.WatchdogReason
		wantKind    Kind
		wantCode    string
	}{
		{name: "success", exitCode: 0, watchdog: result.ReasonNone, wantKind: Accepted, wantCode: TestPassed},
		{name: "nonzero exit", exitCode: 1, watchdog: result.ReasonNone, wantKind: Rejected, wantCode: RuntimeError},
		{name: "cpu tle collapses", exitCode: 0, watchdog: result.ReasonCPU, wantKind: Rejected, wantCode: TimeLimitExceeded},
		{name: "real tle collapses", exitCode: 0, watchdog: result.ReasonReal, wantKind: Rejected, wantCode: TimeLimitExceeded},
		{name: "tle wins over nonzero exit", exitCode: 137, watchdog: result.ReasonCPU, wantKind: Rejected, wantCode: TimeLimitExceeded},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := FromExit(tc.exitCode, tc.watchdog)
			if got.Kind != tc.wantKind || got.Code != tc.wantCode {
				t.Fatalf("FromExit(%d, %v) = %v, want {%v %v}", tc.exitCode, tc.watchdog, got, tc.wantKind, tc.wantCode)
			}
		})
	}
}

func TestCheckerOutcome(t *testing.T) {
	t.Parallel()
	tests := []struct {
		outcome  string
		wantKind Kind
		wantCode string
	}{
		{outcome: "ok", wantKind: Accepted, wantCode: TestPassed},
		{outcome: "wrong-answer", wantKind: Rejected, wantCode: WrongAnswer},
		{outcome: "presentation-error", wantKind: Rejected, wantCode: PresentationError},
		{outcome: "garbage", wantKind: InternalError, wantCode: JudgeFault},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.outcome, func(t *testing.T) {
			t.Parallel()
			got := CheckerOutcome(tc.outcome)
			if got.Kind != tc.wantKind || got.Code != tc.wantCode {
				t.Fatalf("CheckerOutcome(%q) = %v, want {%v %v}", tc.outcome, got, tc.wantKind, tc.wantCode)
			}
		})
	}
}

func TestCompileStatus(t *testing.T) {
	t.Parallel()
	if got := CompileStatus(true); got.Code != CompilationTimedOut {
		t.Fatalf("CompileStatus(true) = %v, want code %v", got, CompilationTimedOut)
	}
	if got := CompileStatus(false); got.Code != CompilerFailed {
		t.Fatalf("CompileStatus(false) = %v, want code %v", got, CompilerFailed)
	}
}

func TestOverallStatus(t *testing.T) {
	t.Parallel()
	if got := OverallStatus(true); got.Kind != Accepted || got.Code != AcceptedCode {
		t.Fatalf("OverallStatus(true) = %v, want {%v %v}", got, Accepted, AcceptedCode)
	}
	if got := OverallStatus(false); got.Kind != Rejected || got.Code != PartialSolution {
		t.Fatalf("OverallStatus(false) = %v, want {%v %v}", got, Rejected, PartialSolution)
	}
}

func TestLaunchFailedAndFault(t *testing.T) {
	t.Parallel()
	if got := LaunchFailed(); got.Kind != Rejected || got.Code != LaunchError {
		t.Fatalf("LaunchFailed() = %v", got)
	}
	if got := Fault(); got.Kind != InternalError || got.Code != JudgeFault {
		t.Fatalf("Fault() = %v", got)
	}
}
