package worker

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
)

// TestRecord is everything the Worker captured about one executed test,
// kept around until judge-log synthesis so the Valuer's visibility bits
// can select which blobs to disclose (spec §3/§4.4).
type TestRecord struct {
	Stdin    []byte
	Stdout   []byte
	Stderr   []byte
	Answer   []byte
	Status   status.Status
	TimeMs   int64
	MemoryKB int64
}

// JudgeLogTestRow is one test's row in the finalized, disclosure-applied
// judge log (spec §3's JudgeLogTestRow).
type JudgeLogTestRow struct {
	TestID   int            `json:"test_id"`
	Status   *status.Status `json:"status,omitempty"`
	Stdin    *string        `json:"stdin,omitempty"`
	Stdout   *string        `json:"stdout,omitempty"`
	Stderr   *string        `json:"stderr,omitempty"`
	Answer   *string        `json:"answer,omitempty"`
	TimeMs   *int64         `json:"time_ms,omitempty"`
	MemoryKB *int64         `json:"memory_kb,omitempty"`
}

// JudgeLogSubtaskRow is one subtask's row, spec §3's JudgeLogSubtaskRow.
type JudgeLogSubtaskRow struct {
	SubtaskID string `json:"subtask_id"`
	Score     int    `json:"score"`
}

// JudgeLog is the finalized, per-kind judge outcome (spec §3).
type JudgeLog struct {
	Kind          valuer.Kind          `json:"kind"`
	Status        status.Status        `json:"status"`
	Score         int                  `json:"score"`
	CompileStdout string               `json:"compile_stdout"`
	CompileStderr string               `json:"compile_stderr"`
	Tests         []JudgeLogTestRow    `json:"tests"`
	Subtasks      []JudgeLogSubtaskRow `json:"subtasks"`
}

// BuildJudgeLog synthesizes the Worker-visible JudgeLog from the Valuer's
// internal log plus the captured per-test records, applying each row's
// visibility bits (spec §4.4, "Worker-side judge-log synthesis").
func BuildJudgeLog(vlog valuer.JudgeLog, records map[int]TestRecord, compileStdoutPaths, compileStderrPaths []string) (JudgeLog, error) {
	compileStdout, err := concatFilesBase64(compileStdoutPaths)
	if err != nil {
		return JudgeLog{}, err
	}
	compileStderr, err := concatFilesBase64(compileStderrPaths)
	if err != nil {
		return JudgeLog{}, err
	}

	out := JudgeLog{
		Kind:          vlog.Kind,
		Status:        status.OverallStatus(vlog.IsFull),
		Score:         vlog.Score,
		CompileStdout: compileStdout,
		CompileStderr: compileStderr,
	}
	for _, row := range vlog.Tests {
		out.Tests = append(out.Tests, buildTestRow(row, records[row.TestID]))
	}
	sort.Slice(out.Tests, func(i, j int) bool { return out.Tests[i].TestID < out.Tests[j].TestID })
	for _, st := range vlog.Subtasks {
		out.Subtasks = append(out.Subtasks, JudgeLogSubtaskRow{SubtaskID: st.SubtaskID, Score: st.Score})
	}
	return out, nil
}

func buildTestRow(row valuer.JudgeLogTestRow, rec TestRecord) JudgeLogTestRow {
	out := JudgeLogTestRow{TestID: row.TestID}
	if row.Visibility.Has(valuer.TestData) {
		out.Stdin = b64Ptr(rec.Stdin)
	}
	if row.Visibility.Has(valuer.Output) {
		out.Stdout = b64Ptr(rec.Stdout)
		out.Stderr = b64Ptr(rec.Stderr)
	}
	if row.Visibility.Has(valuer.Answer) {
		out.Answer = b64Ptr(rec.Answer)
	}
	if row.Visibility.Has(valuer.StatusFlag) {
		s := rec.Status
		out.Status = &s
	}
	if row.Visibility.Has(valuer.ResourceUsage) {
		t, m := rec.TimeMs, rec.MemoryKB
		out.TimeMs = &t
		out.MemoryKB = &m
	}
	return out
}

func b64Ptr(data []byte) *string {
	s := base64.StdEncoding.EncodeToString(data)
	return &s
}

// FaultJudgeLog synthesizes the pseudo judge log emitted for both kinds
// when a request cannot be completed (spec §4.2's "On any unrecoverable
// error, synthesize a pseudo-valuer-log of kind Contestant and kind Full
// with empty tests/subtasks, score 0, status INTERNAL_ERROR/JUDGE_FAULT").
func FaultJudgeLog(kind valuer.Kind) JudgeLog {
	return JudgeLog{Kind: kind, Status: status.Fault(), Score: 0}
}

// writeJudgeLogFile persists one kind's finalized judge log under the
// request's output directory, named by kind, so a controller that crashes
// mid-request can recover the last-finalized outcome on restart.
func writeJudgeLogFile(outDir string, log JudgeLog) error {
	name := "protocol-contestant.json"
	if log.Kind == valuer.Full {
		name = "protocol-full.json"
	}
	f, err := os.Create(filepath.Join(outDir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(log)
}

func concatFilesBase64(paths []string) (string, error) {
	var combined []byte
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		combined = append(combined, data...)
	}
	return base64.StdEncoding.EncodeToString(combined), nil
}
