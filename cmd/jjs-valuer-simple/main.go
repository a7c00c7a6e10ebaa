// Command jjs-valuer-simple is the reference Valuer binary (spec §4.4,
// "Valuer reference behavior"): it reads its own group assignment from a
// config file named by JJS_VALUER_CONFIG, then drives
// internal/judge/valuer/simple.Fiber against the Worker's line-delimited
// JSON protocol on stdin/stdout.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"jjsgo/internal/judge/model"
	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
	"jjsgo/internal/judge/valuer/simple"
)

// config is the on-disk shape JJS_VALUER_CONFIG points to: one group tag
// per test, in test-id order (1-based).
type config struct {
	Groups []string `json:"groups"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jjs-valuer-simple: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := os.Getenv("JJS_VALUER_CONFIG")
	if cfgPath == "" {
		return fmt.Errorf("JJS_VALUER_CONFIG is required")
	}
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var cfg config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

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

	tests := make([]model.Test, info.TestCount)
	for i := range tests {
		if i < len(cfg.Groups) {
			tests[i] = model.Test{Group: cfg.Groups[i]}
		}
	}
	fiber := simple.NewFiber(tests)

	for !fiber.Settled() {
		testID, ok := fiber.NextTest()
		if !ok {
			// No runnable test but not settled: every remaining test is in
			// a group whose dependency failed, so none of them can run.
			break
		}
		if err := out.Encode(valuer.Response{Kind: valuer.RespTest, Test: &valuer.TestRequest{TestID: testID, Live: true}}); err != nil {
			return err
		}
		if !in.Scan() {
			if err := in.Err(); err != nil {
				return fmt.Errorf("read TestDoneNotification: %w", err)
			}
			return io.ErrUnexpectedEOF
		}
		var done valuer.TestDoneNotification
		if err := json.Unmarshal(in.Bytes(), &done); err != nil {
			return fmt.Errorf("decode TestDoneNotification: %w", err)
		}
		fiber.Notify(done.TestID, done.TestStatus == status.Status{Kind: status.Accepted, Code: status.TestPassed})
		if err := out.Encode(valuer.Response{Kind: valuer.RespLiveScore, Score: fiber.LiveScore()}); err != nil {
			return err
		}
	}

	contestant, full := fiber.BuildLogs()
	if err := out.Encode(valuer.Response{Kind: valuer.RespJudgeLog, JudgeLog: &contestant}); err != nil {
		return err
	}
	if err := out.Encode(valuer.Response{Kind: valuer.RespJudgeLog, JudgeLog: &full}); err != nil {
		return err
	}
	return out.Encode(valuer.Response{Kind: valuer.RespFinish})
}
