// Command jjs-valuer-term is the interactive terminal Valuer driver (spec
// §11/§14), mirrored from original_source's svaluer::main::TermDriver: an
// operator manually decides which test to run next, what live score to
// report, and when to finish, instead of letting
// internal/judge/valuer/simple.Fiber schedule a problem's groups
// automatically. Useful for manually driving a single judge request from a
// shell while debugging a Worker or a problem package.
//
// Its stdin/stdout carry the Worker<->Valuer wire protocol (spec §4.4), so
// the operator's prompt is read from and written to the controlling
// terminal at /dev/tty instead, via github.com/chzyer/readline.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jjs-valuer-term: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 16<<20)
	out := json.NewEncoder(os.Stdout)

	if !in.Scan() {
		return fmt.Errorf("expected ProblemInfo, got EOF")
	}
	var info valuer.ProblemInfo
	if err := json.Unmarshal(in.Bytes(), &info); err != nil {
		return fmt.Errorf("decode ProblemInfo: %w", err)
	}

	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open controlling terminal: %w", err)
	}
	defer tty.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt: "jjs-valuer> ",
		Stdin:  tty,
		Stdout: tty,
		Stderr: tty,
	})
	if err != nil {
		return fmt.Errorf("start readline: %w", err)
	}
	defer rl.Close()

	d := &termDriver{in: in, out: out, tests: make(map[int]status.Status)}
	fmt.Fprintf(tty, "jjs-valuer-term: %d tests. commands: test <id> | score <n> | finish <n> [full]\n", info.TestCount)
	return d.loop(rl, tty)
}

// termDriver holds the state a manual session accumulates: every test
// result the operator has requested so far, kept so "finish" can emit a
// judge log with real per-test rows instead of an empty one.
type termDriver struct {
	in    *bufio.Scanner
	out   *json.Encoder
	tests map[int]status.Status
}

func (d *termDriver) loop(rl *readline.Instance, tty io.Writer) error {
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return d.out.Encode(valuer.Response{Kind: valuer.RespFinish})
		}
		if err != nil {
			return fmt.Errorf("read command: %w", err)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "test":
			if err := d.cmdTest(fields, tty); err != nil {
				fmt.Fprintln(tty, "error:", err)
			}
		case "score":
			if err := d.cmdScore(fields); err != nil {
				fmt.Fprintln(tty, "error:", err)
			}
		case "finish":
			return d.cmdFinish(fields)
		case "help":
			fmt.Fprintln(tty, "commands: test <id> | score <n> | finish <n> [full]")
		default:
			fmt.Fprintln(tty, "unknown command:", fields[0])
		}
	}
}

// cmdTest asks the Worker to run one test and records its outcome.
func (d *termDriver) cmdTest(fields []string, tty io.Writer) error {
	if len(fields) != 2 {
		return fmt.Errorf("usage: test <id>")
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("bad test id: %w", err)
	}
	if err := d.out.Encode(valuer.Response{Kind: valuer.RespTest, Test: &valuer.TestRequest{TestID: id, Live: true}}); err != nil {
		return err
	}
	if !d.in.Scan() {
		if err := d.in.Err(); err != nil {
			return fmt.Errorf("read test-done notification: %w", err)
		}
		return io.ErrUnexpectedEOF
	}
	var done valuer.TestDoneNotification
	if err := json.Unmarshal(d.in.Bytes(), &done); err != nil {
		return fmt.Errorf("decode test-done notification: %w", err)
	}
	d.tests[done.TestID] = done.TestStatus
	fmt.Fprintf(tty, "test %d -> %s/%s\n", done.TestID, done.TestStatus.Kind, done.TestStatus.Code)
	return nil
}

// cmdScore emits a non-authoritative live score update.
func (d *termDriver) cmdScore(fields []string) error {
	if len(fields) != 2 {
		return fmt.Errorf("usage: score <n>")
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("bad score: %w", err)
	}
	return d.out.Encode(valuer.Response{Kind: valuer.RespLiveScore, Score: n})
}

// cmdFinish synthesizes a judge log of every test run so far plus the
// operator's final score, for both disclosure kinds, then ends the
// session (spec §4.4's RespJudgeLog/RespFinish sequence).
func (d *termDriver) cmdFinish(fields []string) error {
	if len(fields) < 2 {
		return fmt.Errorf("usage: finish <n> [full]")
	}
	score, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("bad score: %w", err)
	}
	isFull := len(fields) > 2 && fields[2] == "full"

	ids := make([]int, 0, len(d.tests))
	for id := range d.tests {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	rows := make([]valuer.JudgeLogTestRow, 0, len(ids))
	for _, id := range ids {
		st := d.tests[id]
		rows = append(rows, valuer.JudgeLogTestRow{TestID: id, Status: &st, Visibility: valuer.StatusFlag | valuer.ResourceUsage})
	}
	subtask := valuer.JudgeLogSubtaskRow{SubtaskID: "manual", Score: score, Visibility: valuer.StatusFlag}

	contestant := valuer.JudgeLog{Kind: valuer.Contestant, IsFull: isFull, Score: score, Tests: rows, Subtasks: []valuer.JudgeLogSubtaskRow{subtask}}
	full := valuer.JudgeLog{Kind: valuer.Full, IsFull: isFull, Score: score, Tests: rows, Subtasks: []valuer.JudgeLogSubtaskRow{subtask}}

	if err := d.out.Encode(valuer.Response{Kind: valuer.RespJudgeLog, JudgeLog: &contestant}); err != nil {
		return err
	}
	if err := d.out.Encode(valuer.Response{Kind: valuer.RespJudgeLog, JudgeLog: &full}); err != nil {
		return err
	}
	return d.out.Encode(valuer.Response{Kind: valuer.RespFinish})
}
