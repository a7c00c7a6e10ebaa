// Package status holds the judge pipeline's verdict vocabulary (spec §7):
// the Kind/Code pairs attached to tests and to overall judge outcomes, and
// the mappings from sandbox/checker results onto them.
package status

import (
	"fmt"

	"jjsgo/internal/sandbox/result"
)

// Kind classifies a status the way spec §7's error taxonomy does.
type Kind string

const (
	Accepted      Kind = "Accepted"
	Rejected      Kind = "Rejected"
	CompileError  Kind = "CompileError"
	InternalError Kind = "InternalError"
)

// Code values, spec §3/§4.5/§7/§8.
const (
	TestPassed           = "TEST_PASSED"
	WrongAnswer          = "WRONG_ANSWER"
	PresentationError    = "PRESENTATION_ERROR"
	JudgeFault           = "JUDGE_FAULT"
	TimeLimitExceeded    = "TIME_LIMIT_EXCEEDED"
	RuntimeError         = "RUNTIME_ERROR"
	LaunchError          = "LAUNCH_ERROR"
	CompilerFailed       = "COMPILER_FAILED"
	CompilationTimedOut  = "COMPILATION_TIMED_OUT"
	PartialSolution      = "PARTIAL_SOLUTION"
	InternalErrorCode    = "INTERNAL_ERROR"
	AcceptedCode         = "ACCEPTED"
)

// Status is a (Kind, Code) pair, e.g. {Rejected, WRONG_ANSWER}.
type Status struct {
	Kind Kind   `json:"kind"`
	Code string `json:"code"`
}

func (s Status) String() string { return fmt.Sprintf("%s/%s", s.Kind, s.Code) }

// FromExit maps a sandboxed run's exit code and watchdog reason to a
// per-test Status, per spec §4.2 ("Test execution details") and §7. The
// CPU-vs-real TLE distinction is collapsed to a single TimeLimitExceeded
// code at this boundary, per SPEC_FULL.md §15's open-question decision;
// the original reason byte is still available on RunResult for logging.
func FromExit(exitCode int, watchdogReason result.WatchdogReason) Status {
	if watchdogReason == result.ReasonCPU || watchdogReason == result.ReasonReal {
		return Status{Rejected, TimeLimitExceeded}
	}
	if exitCode != 0 {
		return Status{Rejected, RuntimeError}
	}
	return Status{Accepted, TestPassed}
}

// LaunchFailed is the status for a Sandbox-policy spawn rejection (e.g.
// executable missing inside chroot), spec §4.1/§8 scenario 5.
func LaunchFailed() Status { return Status{Rejected, LaunchError} }

// Fault is the status for any unrecoverable internal error (spec §7,
// "Judge fault").
func Fault() Status { return Status{InternalError, JudgeFault} }

// CheckerOutcome maps the checker protocol's verdict line (spec §4.5) to a
// test Status. Unknown outcomes are themselves a judge fault.
func CheckerOutcome(outcome string) Status {
	switch outcome {
	case "ok":
		return Status{Accepted, TestPassed}
	case "wrong-answer":
		return Status{Rejected, WrongAnswer}
	case "presentation-error":
		return Status{Rejected, PresentationError}
	default:
		return Status{InternalError, JudgeFault}
	}
}

// CompileStatus maps a compile command's outcome to the CompileError
// status used on JudgeDone (spec §4.2).
func CompileStatus(timedOut bool) Status {
	if timedOut {
		return Status{CompileError, CompilationTimedOut}
	}
	return Status{CompileError, CompilerFailed}
}

// OverallStatus derives the judge log's top-level status from whether the
// log is the full/authoritative one (spec §4.4, "Worker-side judge-log
// synthesis": "ACCEPTED if is_full, else REJECTED/PARTIAL_SOLUTION").
func OverallStatus(isFull bool) Status {
	if isFull {
		return Status{Accepted, AcceptedCode}
	}
	return Status{Rejected, PartialSolution}
}

// DoneKind tags the terminal JudgeDone response a Worker sends (spec §4.2).
type DoneKind string

const (
	DoneFault        DoneKind = "fault"
	DoneCompileError DoneKind = "compile_error"
	DoneTestingDone  DoneKind = "testing_done"
)

// JudgeDone is the Worker's terminal response for one judge request.
type JudgeDone struct {
	Kind          DoneKind `json:"kind"`
	CompileStatus *Status  `json:"compile_status,omitempty"`
}
