package worker

import (
	"os"
	"path/filepath"
	"testing"

	"jjsgo/internal/judge/status"
	"jjsgo/internal/judge/valuer"
)

func TestBuildJudgeLogAppliesVisibilityBits(t *testing.T) {
	t.Parallel()
	records := map[int]TestRecord{
		1: {Stdin: []byte("in"), Stdout: []byte("out"), Stderr: []byte("err"), Answer: []byte("ans"), Status: status.Status{Kind: status.Accepted, Code: status.TestPassed}, TimeMs: 10, MemoryKB: 20},
	}
	vlog := valuer.JudgeLog{
		Kind:   valuer.Contestant,
		IsFull: true,
		Score:  100,
		Tests: []valuer.JudgeLogTestRow{
			{TestID: 1, Visibility: valuer.TestData | valuer.StatusFlag},
		},
		Subtasks: []valuer.JudgeLogSubtaskRow{{SubtaskID: "samples", Score: 100}},
	}

	out, err := BuildJudgeLog(vlog, records, nil, nil)
	if err != nil {
		t.Fatalf("BuildJudgeLog: %v", err)
	}
	if out.Status.Kind != status.Accepted {
		t.Fatalf("a full valuer log must map to an Accepted overall status, got %v", out.Status)
	}
	if len(out.Tests) != 1 {
		t.Fatalf("got %d test rows, want 1", len(out.Tests))
	}
	row := out.Tests[0]
	if row.Stdin == nil {
		t.Fatalf("TestData bit set: Stdin must be populated")
	}
	if row.Stdout != nil || row.Stderr != nil {
		t.Fatalf("Output bit unset: Stdout/Stderr must stay nil, got stdout=%v stderr=%v", row.Stdout, row.Stderr)
	}
	if row.Answer != nil {
		t.Fatalf("Answer bit unset: Answer must stay nil, got %v", row.Answer)
	}
	if row.Status == nil || row.Status.Kind != status.Accepted {
		t.Fatalf("StatusFlag bit set: Status must be populated, got %v", row.Status)
	}
	if row.TimeMs != nil || row.MemoryKB != nil {
		t.Fatalf("ResourceUsage bit unset: TimeMs/MemoryKB must stay nil")
	}
}

func TestBuildJudgeLogSortsTestsByID(t *testing.T) {
	t.Parallel()
	records := map[int]TestRecord{
		1: {Status: status.Status{Kind: status.Accepted, Code: status.TestPassed}},
		2: {Status: status.Status{Kind: status.Accepted, Code: status.TestPassed}},
		3: {Status: status.Status{Kind: status.Accepted, Code: status.TestPassed}},
	}
	vlog := valuer.JudgeLog{
		Kind: valuer.Full,
		Tests: []valuer.JudgeLogTestRow{
			{TestID: 3, Visibility: valuer.StatusFlag},
			{TestID: 1, Visibility: valuer.StatusFlag},
			{TestID: 2, Visibility: valuer.StatusFlag},
		},
	}
	out, err := BuildJudgeLog(vlog, records, nil, nil)
	if err != nil {
		t.Fatalf("BuildJudgeLog: %v", err)
	}
	for i, want := range []int{1, 2, 3} {
		if out.Tests[i].TestID != want {
			t.Fatalf("Tests[%d].TestID = %d, want %d (not sorted)", i, out.Tests[i].TestID, want)
		}
	}
}

func TestBuildJudgeLogConcatenatesCompileOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p1 := filepath.Join(dir, "stdout-0.txt")
	p2 := filepath.Join(dir, "stdout-1.txt")
	if err := os.WriteFile(p1, []byte("first "), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := os.WriteFile(p2, []byte("second"), 0644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	missing := filepath.Join(dir, "does-not-exist.txt")

	out, err := BuildJudgeLog(valuer.JudgeLog{}, nil, []string{p1, missing, p2}, nil)
	if err != nil {
		t.Fatalf("BuildJudgeLog: %v", err)
	}
	wantBase64 := "Zmlyc3Qgc2Vjb25k" // base64("first second")
	if out.CompileStdout != wantBase64 {
		t.Fatalf("CompileStdout = %q, want %q (a missing file must be skipped, not error)", out.CompileStdout, wantBase64)
	}
}

func TestFaultJudgeLog(t *testing.T) {
	t.Parallel()
	log := FaultJudgeLog(valuer.Full)
	if log.Kind != valuer.Full {
		t.Fatalf("Kind = %v, want Full", log.Kind)
	}
	if log.Status.Kind != status.InternalError || log.Status.Code != status.JudgeFault {
		t.Fatalf("Status = %v, want {InternalError JUDGE_FAULT}", log.Status)
	}
	if log.Score != 0 {
		t.Fatalf("Score = %d, want 0", log.Score)
	}
}
