package simple

import (
	"testing"

	"jjsgo/internal/judge/model"
	"jjsgo/internal/judge/valuer"
)

func sampleTests() []model.Test {
	return []model.Test{
		{Group: GroupSamples}, // id 1
		{Group: GroupSamples}, // id 2
		{Group: GroupOnline},  // id 3
		{Group: GroupOnline},  // id 4
		{Group: GroupOffline}, // id 5
		{Group: ""},           // id 6, unrecognized -> online
	}
}

func TestNewFiberPartitionsByGroup(t *testing.T) {
	t.Parallel()
	f := NewFiber(sampleTests())
	if got := f.groups[GroupSamples].testIDs; len(got) != 2 {
		t.Fatalf("samples group has %d tests, want 2", len(got))
	}
	if got := f.groups[GroupOnline].testIDs; len(got) != 3 {
		t.Fatalf("online group has %d tests, want 3 (including the unrecognized-group test), got %v", len(got), got)
	}
	if got := f.groups[GroupOffline].testIDs; len(got) != 1 {
		t.Fatalf("offline group has %d tests, want 1", len(got))
	}
}

func TestNextTestRespectsDependencyOrder(t *testing.T) {
	t.Parallel()
	f := NewFiber(sampleTests())

	// Online and offline tests must not be scheduled before samples settle.
	for i := 0; i < 2; i++ {
		id, ok := f.NextTest()
		if !ok {
			t.Fatalf("expected a sample test to be schedulable")
		}
		if f.testGroup[id] != GroupSamples {
			t.Fatalf("NextTest returned test %d in group %q before samples settled", id, f.testGroup[id])
		}
		f.Notify(id, true)
	}

	// samples settled (passed) -> online becomes schedulable, offline still isn't.
	id, ok := f.NextTest()
	if !ok || f.testGroup[id] != GroupOnline {
		t.Fatalf("expected an online test to be schedulable once samples passed, got id=%d ok=%v", id, ok)
	}
}

func TestNotifyFailurePropagatesWithinGroup(t *testing.T) {
	t.Parallel()
	f := NewFiber(sampleTests())

	id1, _ := f.NextTest()
	f.Notify(id1, false)
	id2, _ := f.NextTest()
	if id2 != 0 {
		t.Fatalf("a second sample test should not be scheduled; the failed test must skip the rest of its group, got %d", id2)
	}
	if !f.groups[GroupSamples].failed {
		t.Fatalf("samples group must be marked failed after one of its tests fails")
	}
	if !f.groups[GroupSamples].settled() {
		t.Fatalf("a failed group must report settled() == true")
	}

	// With samples failed, online/offline must never become schedulable.
	for {
		id, ok := f.NextTest()
		if !ok {
			break
		}
		if f.testGroup[id] != GroupSamples {
			t.Fatalf("test %d in group %q was scheduled despite its unmet dependency", id, f.testGroup[id])
		}
	}
}

func TestSettledAndLiveScore(t *testing.T) {
	t.Parallel()
	f := NewFiber(sampleTests())
	if f.Settled() {
		t.Fatalf("a freshly built Fiber must not be settled")
	}
	for {
		id, ok := f.NextTest()
		if !ok {
			break
		}
		f.Notify(id, true)
	}
	if !f.Settled() {
		t.Fatalf("Fiber must be settled once every group has run to completion")
	}
	if score := f.LiveScore(); score != 100 {
		t.Fatalf("LiveScore() with everything passing = %d, want 100", score)
	}
}

func TestBuildLogsScoreInvariant(t *testing.T) {
	t.Parallel()
	f := NewFiber(sampleTests())
	for {
		id, ok := f.NextTest()
		if !ok {
			break
		}
		// fail the lone offline test, pass everything else
		f.Notify(id, f.testGroup[id] != GroupOffline)
	}

	contestant, full := f.BuildLogs()

	for _, tc := range []struct {
		name string
		l    valuer.JudgeLog
	}{{"contestant", contestant}, {"full", full}} {
		sum := 0
		for _, s := range tc.l.Subtasks {
			sum += s.Score
		}
		if sum != tc.l.Score {
			t.Fatalf("%s log: score invariant violated, Score=%d sum(subtasks)=%d", tc.name, tc.l.Score, sum)
		}
	}

	for _, s := range contestant.Subtasks {
		if s.SubtaskID == GroupOffline {
			t.Fatalf("contestant log must exclude the offline group's subtask row, found %v", s)
		}
	}
	foundOffline := false
	for _, s := range full.Subtasks {
		if s.SubtaskID == GroupOffline {
			foundOffline = true
		}
	}
	if !foundOffline {
		t.Fatalf("full log must include the offline group's subtask row")
	}
}

func TestBuildLogsIsFullIndependentOfKind(t *testing.T) {
	t.Parallel()

	// Trivial accept: every test in every group passes. Both logs must
	// report is_full, not just the Full-kind one.
	accepted := NewFiber(sampleTests())
	for {
		id, ok := accepted.NextTest()
		if !ok {
			break
		}
		accepted.Notify(id, true)
	}
	contestant, full := accepted.BuildLogs()
	if !contestant.IsFull {
		t.Fatalf("contestant log for an all-passing solution must have is_full=true")
	}
	if !full.IsFull {
		t.Fatalf("full log for an all-passing solution must have is_full=true")
	}

	// Wrong answer: one online test fails. Neither log may claim is_full.
	rejected := NewFiber(sampleTests())
	for {
		id, ok := rejected.NextTest()
		if !ok {
			break
		}
		rejected.Notify(id, rejected.testGroup[id] != GroupOnline)
	}
	contestant, full = rejected.BuildLogs()
	if contestant.IsFull {
		t.Fatalf("contestant log for a wrong-answer solution must have is_full=false")
	}
	if full.IsFull {
		t.Fatalf("full log for a wrong-answer solution must have is_full=false")
	}
	if full.Score >= 100 {
		t.Fatalf("full log Score = %d, want < 100 for a wrong-answer solution", full.Score)
	}
}

func TestBuildLogsSamplesGroupNeverScoresAndMatchesLiveScore(t *testing.T) {
	t.Parallel()
	f := NewFiber(sampleTests())
	for {
		id, ok := f.NextTest()
		if !ok {
			break
		}
		// fail the lone offline test, pass everything else (samples included)
		f.Notify(id, f.testGroup[id] != GroupOffline)
	}
	liveScore := f.LiveScore()
	_, full := f.BuildLogs()

	for _, s := range full.Subtasks {
		if s.SubtaskID == GroupSamples && s.Score != 0 {
			t.Fatalf("samples subtask row must always score 0, got %d", s.Score)
		}
	}
	if full.Score != liveScore {
		t.Fatalf("full.Score = %d, LiveScore() = %d; a finalized log must not contradict the live score", full.Score, liveScore)
	}
	if full.Score > 100 {
		t.Fatalf("full.Score = %d, must never exceed 100", full.Score)
	}
}
