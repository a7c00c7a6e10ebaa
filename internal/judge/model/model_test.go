package model

import "testing"

func TestFileRefResolve(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		ref        FileRef
		problemDir string
		otherRoot  string
		want       string
	}{
		{name: "problem root", ref: FileRef{Root: RootProblem, Path: "tests/01.txt"}, problemDir: "/p", otherRoot: "/o", want: "/p/tests/01.txt"},
		{name: "dir root", ref: FileRef{Root: RootDir, Path: "build"}, problemDir: "/p", otherRoot: "/o", want: "/o/build"},
		{name: "empty path returns base", ref: FileRef{Root: RootDir, Path: ""}, problemDir: "/p", otherRoot: "/o", want: "/o"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.ref.Resolve(tc.problemDir, tc.otherRoot); got != tc.want {
				t.Fatalf("Resolve() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLimitsMerge(t *testing.T) {
	t.Parallel()
	base := Limits{MemoryBytes: 256 << 20, TimeMs: 1000}

	unset := base.Merge(Limits{})
	if unset != base {
		t.Fatalf("merging a zero-value Limits must leave base untouched, got %+v", unset)
	}

	override := base.Merge(Limits{TimeMs: 2000})
	if override.TimeMs != 2000 || override.MemoryBytes != base.MemoryBytes {
		t.Fatalf("merge should only overlay non-zero fields, got %+v", override)
	}

	zero := 0
	explicitZero := base.Merge(Limits{ProcessCount: &zero})
	if explicitZero.ProcessCount == nil || *explicitZero.ProcessCount != 0 {
		t.Fatalf("an explicit zero ProcessCount must override, not be treated as unset, got %+v", explicitZero.ProcessCount)
	}

	inherited := base.Merge(Limits{})
	if inherited.ProcessCount != nil {
		t.Fatalf("nil ProcessCount must mean inherit, got %+v", inherited.ProcessCount)
	}
}

func TestLimitsToSandboxLimit(t *testing.T) {
	t.Parallel()
	n := 4
	l := Limits{MemoryBytes: 512 << 20, TimeMs: 3000, ProcessCount: &n}
	rl := l.ToSandboxLimit()
	if rl.MemoryBytes != l.MemoryBytes {
		t.Fatalf("MemoryBytes = %d, want %d", rl.MemoryBytes, l.MemoryBytes)
	}
	if rl.CPUTimeMs != l.TimeMs {
		t.Fatalf("CPUTimeMs = %d, want %d", rl.CPUTimeMs, l.TimeMs)
	}
	if rl.MaxAliveProcess != 4 {
		t.Fatalf("MaxAliveProcess = %d, want 4", rl.MaxAliveProcess)
	}

	withoutCount := Limits{MemoryBytes: 1, TimeMs: 1}.ToSandboxLimit()
	if withoutCount.MaxAliveProcess != 0 {
		t.Fatalf("nil ProcessCount must lower to MaxAliveProcess 0, got %d", withoutCount.MaxAliveProcess)
	}
}
