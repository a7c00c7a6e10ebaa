package worker

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"

	"jjsgo/internal/judge/status"
	pkgerrors "jjsgo/pkg/errors"
)

// These name the environment variables the checker protocol
// (spec §4.5) uses to learn its inherited file descriptor numbers. The
// numbers themselves are fixed by the ExtraFiles order below.
const (
	envTest            = "JJS_TEST"
	envCorr            = "JJS_CORR"
	envSol             = "JJS_SOL"
	envCheckerOut      = "JJS_CHECKER_OUT"
	envCheckerComment  = "JJS_CHECKER_COMMENT"
)

// RunChecker invokes the problem's checker binary outside the sandbox,
// per spec §4.5: test/answer/solution are handed over as small integer
// FDs, verdict and comment travel over two pipes, and the checker's own
// stdout/stderr are captured to checkerLog (t-<id>/check-log.txt).
func RunChecker(checkerPath string, argvTail []string, testFile, answerFile, solutionFile *os.File, checkerLog io.Writer) (status.Status, string, error) {
	outR, outW, err := os.Pipe()
	if err != nil {
		return status.Status{}, "", pkgerrors.Wrap(err, pkgerrors.CheckerFault)
	}
	defer outR.Close()
	commentR, commentW, err := os.Pipe()
	if err != nil {
		outW.Close()
		return status.Status{}, "", pkgerrors.Wrap(err, pkgerrors.CheckerFault)
	}
	defer commentR.Close()

	cmd := exec.Command(checkerPath, argvTail...)
	// Fixed ExtraFiles order: fd3=test, fd4=corr, fd5=sol, fd6=checker-out, fd7=checker-comment.
	cmd.ExtraFiles = []*os.File{testFile, answerFile, solutionFile, outW, commentW}
	cmd.Env = append(os.Environ(),
		envTest+"=3", envCorr+"=4", envSol+"=5",
		envCheckerOut+"=6", envCheckerComment+"=7",
	)
	cmd.Stdout = checkerLog
	cmd.Stderr = checkerLog

	if err := cmd.Start(); err != nil {
		outW.Close()
		commentW.Close()
		return status.Status{}, "", pkgerrors.Wrapf(err, pkgerrors.CheckerFault, "start checker")
	}
	// Parent's copies of the write ends must close so EOF reaches us once
	// the checker (the only remaining writer) exits or closes them.
	outW.Close()
	commentW.Close()

	outBytes, _ := io.ReadAll(outR)
	commentBytes, _ := io.ReadAll(commentR)
	comment := strings.TrimSpace(string(commentBytes))

	if err := cmd.Wait(); err != nil {
		return status.Fault(), comment, nil
	}

	outcome := parseOutcome(string(outBytes))
	if outcome == "" {
		return status.Fault(), comment, nil
	}
	return status.CheckerOutcome(outcome), comment, nil
}

// parseOutcome extracts the value from the checker protocol's single
// "outcome=..." line.
func parseOutcome(out string) string {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if v, ok := strings.CutPrefix(line, "outcome="); ok {
			return v
		}
	}
	return ""
}
