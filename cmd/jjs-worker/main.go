// Command jjs-worker is the Worker subprocess (spec §4.2): one process
// per pool slot, driven by the Controller over newline-delimited JSON on
// stdin/stdout (internal/judge/worker/protocol.go), handing each
// incoming Judge request to internal/judge/worker.Worker.Judge.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"jjsgo/internal/judge/worker"
	"jjsgo/internal/sandbox/engine"
)

const (
	envZygotePath  = "JJS_ZYGOTE_PATH"
	envJobInitPath = "JJS_JOBINIT_PATH"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jjs-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	paths := engine.Paths{
		ZygotePath:  os.Getenv(envZygotePath),
		JobInitPath: os.Getenv(envJobInitPath),
	}
	if paths.ZygotePath == "" {
		return fmt.Errorf("%s is required", envZygotePath)
	}
	if paths.JobInitPath == "" {
		return fmt.Errorf("%s is required", envJobInitPath)
	}
	w := worker.New(paths)

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 64*1024), 16<<20)
	out := json.NewEncoder(os.Stdout)

	for in.Scan() {
		var req worker.Request
		if err := json.Unmarshal(in.Bytes(), &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		if req.Kind != worker.RequestJudge || req.Judge == nil {
			return fmt.Errorf("unexpected request kind %q", req.Kind)
		}
		w.Judge(req.Judge, func(resp worker.Response) {
			_ = out.Encode(resp)
		})
	}
	return in.Err()
}
