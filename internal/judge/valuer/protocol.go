// Package valuer defines the Worker<->Valuer wire protocol (spec §4.4): a
// line-delimited JSON, full-duplex conversation in which the Valuer
// decides test ordering and the Worker reports completions, plus the
// Driver interface a Worker holds without knowing which Valuer
// implementation is behind it (spec §9, "Valuer as a child process").
package valuer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"jjsgo/internal/judge/status"
)

// ProblemInfo is the first message the Worker sends, spec §4.4.
type ProblemInfo struct {
	TestCount int `json:"test_count"`
}

// TestDoneNotification is sent after each completed test.
type TestDoneNotification struct {
	TestID     int           `json:"test_id"`
	TestStatus status.Status `json:"test_status"`
}

// Visibility is a bitfield of which blobs a judge-log row may disclose,
// spec §3/§4.4.
type Visibility uint8

const (
	TestData      Visibility = 1 << iota // stdin
	Output                                // solution stdout/stderr
	Answer                                // correct answer
	StatusFlag                            // per-test status
	ResourceUsage                         // time/memory
)

func (v Visibility) Has(bit Visibility) bool { return v&bit != 0 }

// JudgeLogTestRow is one test's row in a finalized judge log (spec §3).
type JudgeLogTestRow struct {
	TestID     int           `json:"test_id"`
	Status     *status.Status `json:"status,omitempty"`
	Visibility Visibility    `json:"visibility"`
}

// JudgeLogSubtaskRow is one subtask's row in a finalized judge log.
type JudgeLogSubtaskRow struct {
	SubtaskID  string     `json:"subtask_id"`
	Score      int        `json:"score"`
	Visibility Visibility `json:"visibility"`
}

// Kind is a judge log's audience, spec §3's "kind".
type Kind string

const (
	Contestant Kind = "Contestant"
	Full       Kind = "Full"
)

// JudgeLog is the Valuer's finalized verdict for one kind (spec §4.4).
type JudgeLog struct {
	Kind     Kind                 `json:"kind"`
	Tests    []JudgeLogTestRow    `json:"tests"`
	Subtasks []JudgeLogSubtaskRow `json:"subtasks"`
	Score    int                  `json:"score"`
	IsFull   bool                 `json:"is_full"`
}

// ResponseKind tags the Valuer->Worker tagged union.
type ResponseKind string

const (
	RespTest      ResponseKind = "test"
	RespLiveScore ResponseKind = "live_score"
	RespJudgeLog  ResponseKind = "judge_log"
	RespFinish    ResponseKind = "finish"
)

// TestRequest asks the Worker to execute one test (spec §4.4).
type TestRequest struct {
	TestID int  `json:"test_id"`
	Live   bool `json:"live"`
}

// Response is one frame read from the Valuer.
type Response struct {
	Kind      ResponseKind `json:"kind"`
	Test      *TestRequest `json:"test,omitempty"`
	Score     int          `json:"score,omitempty"`
	JudgeLog  *JudgeLog    `json:"judge_log,omitempty"`
}

// Driver is the interface a Worker holds to talk to a Valuer without
// knowing its implementation, spec §9's explicit requirement.
type Driver interface {
	SendProblemInfo(ProblemInfo) error
	SendTestDone(TestDoneNotification) error
	Next() (Response, error)
	Close() error
}

// ProcessDriver drives a Valuer that is a subprocess speaking
// line-delimited JSON over its stdin/stdout (spec §4.2 step 3, §4.4).
type ProcessDriver struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Scanner
}

// StartProcess spawns binaryPath with configPath in env (the Worker's
// "spawn the valuer binary ... with its configuration file path in the
// environment", spec §4.2 step 3).
func StartProcess(binaryPath, configEnvVar, configPath string, stderr io.Writer) (*ProcessDriver, error) {
	cmd := exec.Command(binaryPath)
	cmd.Env = append(cmd.Env, configEnvVar+"="+configPath)
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start valuer: %w", err)
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	return &ProcessDriver{cmd: cmd, stdin: stdin, reader: scanner}, nil
}

func (d *ProcessDriver) SendProblemInfo(info ProblemInfo) error {
	return d.writeLine(info)
}

func (d *ProcessDriver) SendTestDone(n TestDoneNotification) error {
	return d.writeLine(n)
}

func (d *ProcessDriver) writeLine(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	body = append(body, '\n')
	_, err = d.stdin.Write(body)
	return err
}

// Next blocks for the Valuer's next response line.
func (d *ProcessDriver) Next() (Response, error) {
	if !d.reader.Scan() {
		if err := d.reader.Err(); err != nil {
			return Response{}, fmt.Errorf("read valuer response: %w", err)
		}
		return Response{}, io.EOF
	}
	var resp Response
	if err := json.Unmarshal(d.reader.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("decode valuer response: %w", err)
	}
	return resp, nil
}

func (d *ProcessDriver) Close() error {
	_ = d.stdin.Close()
	return d.cmd.Wait()
}
