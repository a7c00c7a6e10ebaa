package worker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"jjsgo/internal/judge/model"
	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
	"jjsgo/internal/sandbox/engine"
	"jjsgo/internal/sandbox/ids"
	"jjsgo/internal/sandbox/result"
	"jjsgo/internal/sandbox/spec"
	pkgerrors "jjsgo/pkg/errors"
)

// ValuerConfigEnv is the environment variable a spawned Valuer subprocess
// reads its configuration file path from (spec §4.2 step 3).
const ValuerConfigEnv = "JJS_VALUER_CONFIG"

// Worker owns one judge request end-to-end: compile, run tests, consult
// the checker, drive the Valuer loop, emit protocol responses. Grounded
// on the teacher's judge_service/internal/sandbox Worker (constructor
// taking its runtime dependencies, an Execute-shaped entry point), but
// restructured around the spec's own compile/valuer/checker pipeline
// instead of the teacher's single compile+run-tests loop.
type Worker struct {
	SandboxPaths engine.Paths
}

// New constructs a Worker with the binaries its sandboxes need to start.
func New(paths engine.Paths) *Worker {
	return &Worker{SandboxPaths: paths}
}

// Judge runs one lowered judge request to completion, calling emit for
// every response frame (spec §4.2); exactly one RespJudgeDone is sent,
// always last.
func (w *Worker) Judge(req *model.LoweredJudgeRequest, emit func(Response)) {
	stdoutPaths, stderrPaths, compileFail, err := w.compile(req)
	if err != nil {
		w.emitFault(emit)
		return
	}
	if compileFail != nil {
		for _, kind := range []valuer.Kind{valuer.Full, valuer.Contestant} {
			emit(Response{Kind: RespOutcomeHeader, OutcomeHeader: &OutcomeHeader{Kind: kind, Score: 0, Status: *compileFail}})
		}
		emit(Response{Kind: RespJudgeDone, JudgeDone: &status.JudgeDone{Kind: status.DoneCompileError, CompileStatus: compileFail}})
		return
	}

	valuerStderr, err := os.Create(filepath.Join(req.OutDir, "valuer-stderr.txt"))
	if err != nil {
		w.emitFault(emit)
		return
	}
	defer valuerStderr.Close()

	valuerPath := req.Problem.ValuerExe.Resolve(req.ProblemDir, req.OutDir)
	configPath := req.Problem.ValuerConfig.Resolve(req.ProblemDir, req.OutDir)
	driver, err := valuer.StartProcess(valuerPath, ValuerConfigEnv, configPath, valuerStderr)
	if err != nil {
		w.emitFault(emit)
		return
	}
	defer driver.Close()

	if err := driver.SendProblemInfo(valuer.ProblemInfo{TestCount: len(req.Problem.Tests)}); err != nil {
		w.emitFault(emit)
		return
	}

	records := make(map[int]TestRecord, len(req.Problem.Tests))
	for {
		resp, err := driver.Next()
		if err != nil {
			w.emitFault(emit)
			return
		}
		switch resp.Kind {
		case valuer.RespTest:
			rec := w.runTest(req, resp.Test.TestID)
			records[resp.Test.TestID] = rec
			if resp.Test.Live {
				emit(Response{Kind: RespLiveTest, TestID: resp.Test.TestID})
			}
			if err := driver.SendTestDone(valuer.TestDoneNotification{TestID: resp.Test.TestID, TestStatus: rec.Status}); err != nil {
				w.emitFault(emit)
				return
			}
		case valuer.RespLiveScore:
			emit(Response{Kind: RespLiveScore, Score: resp.Score})
		case valuer.RespJudgeLog:
			log, err := BuildJudgeLog(*resp.JudgeLog, records, stdoutPaths, stderrPaths)
			if err != nil {
				w.emitFault(emit)
				return
			}
			if err := writeJudgeLogFile(req.OutDir, log); err != nil {
				w.emitFault(emit)
				return
			}
			emit(Response{Kind: RespOutcomeHeader, OutcomeHeader: &OutcomeHeader{Kind: log.Kind, Score: log.Score, Status: log.Status}})
		case valuer.RespFinish:
			emit(Response{Kind: RespJudgeDone, JudgeDone: &status.JudgeDone{Kind: status.DoneTestingDone}})
			return
		}
	}
}

// emitFault synthesizes both protocol kinds and a Fault JudgeDone, per
// spec §4.2's "on any unrecoverable error" clause.
func (w *Worker) emitFault(emit func(Response)) {
	for _, kind := range []valuer.Kind{valuer.Full, valuer.Contestant} {
		log := FaultJudgeLog(kind)
		emit(Response{Kind: RespOutcomeHeader, OutcomeHeader: &OutcomeHeader{Kind: kind, Score: 0, Status: log.Status}})
	}
	emit(Response{Kind: RespJudgeDone, JudgeDone: &status.JudgeDone{Kind: status.DoneFault}})
}

// compile runs every compile command in its own fresh Sandbox, in order
// (spec §4.2 step 2). It returns the written stdout/stderr log paths, and
// a non-nil compile-failure status if a command failed rather than
// errored outright.
func (w *Worker) compile(req *model.LoweredJudgeRequest) (stdoutPaths, stderrPaths []string, failStatus *status.Status, err error) {
	compileDir := filepath.Join(req.OutDir, "compile")
	if err := os.MkdirAll(compileDir, 0755); err != nil {
		return nil, nil, nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}

	for i, cmd := range req.CompileCommands {
		stdoutPath := filepath.Join(compileDir, fmt.Sprintf("stdout-%d.txt", i))
		stderrPath := filepath.Join(compileDir, fmt.Sprintf("stderr-%d.txt", i))
		stdoutPaths = append(stdoutPaths, stdoutPath)
		stderrPaths = append(stderrPaths, stderrPath)

		rr, spawnRejected, stepErr := w.runStep(req.ToolchainRoot, cmd, req.CompileLimits, nil, stdoutPath, stderrPath, "")
		if stepErr != nil {
			return stdoutPaths, stderrPaths, nil, stepErr
		}
		if spawnRejected {
			s := status.CompileStatus(false)
			return stdoutPaths, stderrPaths, &s, nil
		}
		if rr.TimedOut() {
			s := status.CompileStatus(true)
			return stdoutPaths, stderrPaths, &s, nil
		}
		if rr.ExitCode != 0 {
			s := status.CompileStatus(false)
			return stdoutPaths, stderrPaths, &s, nil
		}
	}

	if len(req.CompileCommands) > 0 {
		builtPath := filepath.Join(req.ToolchainRoot, req.SourceFileName+".out")
		if _, statErr := os.Stat(builtPath); statErr == nil {
			if err := copyFile(builtPath, filepath.Join(req.OutDir, "build")); err != nil {
				return stdoutPaths, stderrPaths, nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
			}
		}
	}
	return stdoutPaths, stderrPaths, nil, nil
}

// runTest executes one test's solution under a fresh Sandbox, invokes the
// checker on success, and returns the captured TestRecord (spec §4.2
// "Valuer loop", Test branch).
func (w *Worker) runTest(req *model.LoweredJudgeRequest, testID int) TestRecord {
	if testID < 1 || testID > len(req.Problem.Tests) {
		return TestRecord{Status: status.Fault()}
	}
	test := req.Problem.Tests[testID-1]
	testDir := filepath.Join(req.OutDir, fmt.Sprintf("t-%d", testID))
	if err := os.MkdirAll(testDir, 0755); err != nil {
		return TestRecord{Status: status.Fault()}
	}

	inputPath := test.Path.Resolve(req.ProblemDir, req.OutDir)
	inputData, err := os.ReadFile(inputPath)
	if err != nil {
		return TestRecord{Status: status.Fault()}
	}
	rec := TestRecord{Stdin: inputData}

	stdoutPath := filepath.Join(testDir, "stdout.txt")
	stderrPath := filepath.Join(testDir, "stderr.txt")
	limits := req.ExecuteLimits.Merge(test.Limits.ToSandboxLimit())

	rr, spawnRejected, stepErr := w.runStep(req.ToolchainRoot, req.ExecuteCommand, limits, inputData, stdoutPath, stderrPath, req.SeccompProfilePath)
	if stepErr != nil {
		rec.Status = status.Fault()
		return rec
	}
	if spawnRejected {
		rec.Status = status.LaunchFailed()
		return rec
	}
	rec.TimeMs = rr.CPUTimeMs
	rec.MemoryKB = rr.MemoryPeakKB
	rec.Status = status.FromExit(rr.ExitCode, rr.WatchdogReason)

	rec.Stdout, _ = os.ReadFile(stdoutPath)
	rec.Stderr, _ = os.ReadFile(stderrPath)

	var answerPath string
	if test.Answer != nil {
		answerPath = test.Answer.Resolve(req.ProblemDir, req.OutDir)
		rec.Answer, _ = os.ReadFile(answerPath)
	}
	// spec §4.5: the checker runs whenever the execute step exits zero
	// within limits, even for a test with no answer FileRef — runChecker
	// falls back to an empty JJS_CORR (os.DevNull) in that case.
	if rec.Status.Kind == status.Accepted {
		checkerStatus, _, err := w.runChecker(req, inputPath, answerPath, stdoutPath, testDir)
		if err != nil {
			rec.Status = status.Fault()
		} else {
			rec.Status = checkerStatus
		}
	}
	return rec
}

func (w *Worker) runChecker(req *model.LoweredJudgeRequest, inputPath, answerPath, solutionOutPath, testDir string) (status.Status, string, error) {
	testFile, err := os.Open(inputPath)
	if err != nil {
		return status.Status{}, "", err
	}
	defer testFile.Close()

	answerFile, err := os.Open(answerPath)
	if err != nil {
		answerFile, err = os.Open(os.DevNull)
		if err != nil {
			return status.Status{}, "", err
		}
	}
	defer answerFile.Close()

	solFile, err := os.Open(solutionOutPath)
	if err != nil {
		return status.Status{}, "", err
	}
	defer solFile.Close()

	checkerLog, err := os.Create(filepath.Join(testDir, "check-log.txt"))
	if err != nil {
		return status.Status{}, "", err
	}
	defer checkerLog.Close()

	checkerPath := req.Problem.CheckerExe.Resolve(req.ProblemDir, req.OutDir)
	return RunChecker(checkerPath, req.Problem.CheckerArgvTail, testFile, answerFile, solFile, checkerLog)
}

// runStep creates a fresh Sandbox rooted at isolationRoot, feeds stdin
// bytes in over a pipe, and runs cmd to completion. spawnRejected reports
// a Sandbox-class (policy) rejection, distinct from a returned err, which
// is always System-class (spec §4.1's error-class contract).
func (w *Worker) runStep(isolationRoot string, cmd spec.Command, limits spec.ResourceLimit, stdin []byte, stdoutPath, stderrPath, seccompProfilePath string) (rr result.RunResult, spawnRejected bool, err error) {
	sb, err := engine.Create(spec.Options{
		JailID:          ids.NewJailID(),
		IsolationRoot:   isolationRoot,
		Limits:          limits,
		EnableNamespace: true,
	}, w.SandboxPaths)
	if err != nil {
		return rr, false, err
	}
	defer sb.Destroy()

	stdoutF, err := os.Create(stdoutPath)
	if err != nil {
		return rr, false, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	defer stdoutF.Close()
	stderrF, err := os.Create(stderrPath)
	if err != nil {
		return rr, false, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	defer stderrF.Close()

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return rr, false, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	go func() {
		defer stdinW.Close()
		if len(stdin) > 0 {
			_, _ = stdinW.Write(stdin)
		}
	}()

	child, err := sb.Spawn(spec.JobQuery{Command: cmd, SeccompProfilePath: seccompProfilePath}, [3]*os.File{stdinR, stdoutF, stderrF})
	stdinR.Close()
	if err != nil {
		if pkgerrors.GetCode(err).IsSandboxPolicy() {
			return rr, true, nil
		}
		return rr, false, err
	}

	rr, err = sb.Wait(child, time.Duration(limits.RealTimeLimitOrDefault())*time.Millisecond)
	if err != nil {
		return rr, false, err
	}
	return rr, false, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
