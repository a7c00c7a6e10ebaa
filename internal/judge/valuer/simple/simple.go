// Package simple implements the reference Valuer behavior from spec §4.4
// ("Valuer reference behavior"), grounded on original_source's
// svaluer::fiber and its group submodule: tests are partitioned into three
// dependency-ordered groups — samples, online (contestant-visible),
// offline (full-log only) — each group schedules its own pending tests
// once its dependencies have fully passed, and fails as a whole the
// moment one of its tests fails.
package simple

import (
	"sort"

	"jjsgo/internal/judge/model"
	"jjsgo/internal/judge/valuer"
)

// Group names, matching the spec's three-group reference scheme.
const (
	GroupSamples = "samples"
	GroupOnline  = "online"
	GroupOffline = "offline"
)

// groupOrder is both the scheduling priority and the dependency chain:
// online depends on samples, offline depends on online.
var groupOrder = []string{GroupSamples, GroupOnline, GroupOffline}

var dependsOn = map[string]string{
	GroupOnline:  GroupSamples,
	GroupOffline: GroupOnline,
}

type testState int

const (
	statePending testState = iota
	stateActive
	statePassed
	stateFailed
	stateSkipped
)

type group struct {
	name    string
	testIDs []int
	state   map[int]testState
	failed  bool
}

func (g *group) settled() bool {
	if g.failed {
		return true
	}
	for _, id := range g.testIDs {
		if g.state[id] == statePending || g.state[id] == stateActive {
			return false
		}
	}
	return true
}

func (g *group) passedCount() int {
	n := 0
	for _, id := range g.testIDs {
		if g.state[id] == statePassed {
			n++
		}
	}
	return n
}

// Fiber is one problem's scheduling state, the in-process equivalent of
// original_source's Fiber holding its Groups.
type Fiber struct {
	groups    map[string]*group
	testGroup map[int]string
	testOK    map[int]bool // last-known pass/fail per test, for log synthesis
	total     int
	doneCount int
}

// NewFiber partitions tests by their Group tag into the three reference
// groups. A test whose Group tag is empty or unrecognized is placed in
// GroupOnline, the middle of the dependency chain.
func NewFiber(tests []model.Test) *Fiber {
	f := &Fiber{
		groups:    make(map[string]*group, 3),
		testGroup: make(map[int]string, len(tests)),
		testOK:    make(map[int]bool, len(tests)),
		total:     len(tests),
	}
	for _, name := range groupOrder {
		f.groups[name] = &group{name: name, state: make(map[int]testState)}
	}
	for i, t := range tests {
		id := i + 1 // test ids are 1-based, matching spec's worked examples
		name := t.Group
		if _, ok := f.groups[name]; !ok {
			name = GroupOnline
		}
		g := f.groups[name]
		g.testIDs = append(g.testIDs, id)
		g.state[id] = statePending
		f.testGroup[id] = name
	}
	return f
}

func (f *Fiber) dependenciesSatisfied(name string) bool {
	dep, ok := dependsOn[name]
	if !ok {
		return true
	}
	depGroup := f.groups[dep]
	return depGroup.settled() && !depGroup.failed
}

// NextTest returns the next test to run, scanning groups in scheduling
// order and skipping any whose dependencies have not fully passed, per
// spec §4.4: "A group schedules its next pending test when all its
// dependency groups have passed."
func (f *Fiber) NextTest() (testID int, ok bool) {
	for _, name := range groupOrder {
		g := f.groups[name]
		if g.failed || !f.dependenciesSatisfied(name) {
			continue
		}
		for _, id := range g.testIDs {
			if g.state[id] == statePending {
				g.state[id] = stateActive
				return id, true
			}
		}
	}
	return 0, false
}

// Notify records one test's outcome. On failure, the owning group and all
// its still-pending tests are marked failed/skipped, per spec §4.4: "on
// any failing test inside a group, the group fails and remaining tests of
// that group are skipped."
func (f *Fiber) Notify(testID int, passed bool) {
	name := f.testGroup[testID]
	g := f.groups[name]
	f.testOK[testID] = passed
	f.doneCount++
	if passed {
		g.state[testID] = statePassed
		return
	}
	g.state[testID] = stateFailed
	g.failed = true
	for _, id := range g.testIDs {
		if g.state[id] == statePending {
			g.state[id] = stateSkipped
		}
	}
}

// Settled reports whether every group has either fully passed or failed.
func (f *Fiber) Settled() bool {
	for _, name := range groupOrder {
		if !f.groups[name].settled() {
			return false
		}
	}
	return true
}

// LiveScore computes a non-authoritative running score from currently
// known results, for emitting valuer.Response{Kind: RespLiveScore}.
func (f *Fiber) LiveScore() int {
	return f.score(groupOrder)
}

// allGroupsPassed reports whether every group that has tests has fully
// passed, the "solution fully correct" condition spec §4.4 calls is_full —
// independent of which disclosure kind (Contestant/Full) is being built.
func (f *Fiber) allGroupsPassed() bool {
	for _, name := range groupOrder {
		g := f.groups[name]
		if len(g.testIDs) == 0 {
			continue
		}
		if g.failed || !g.settled() || g.passedCount() != len(g.testIDs) {
			return false
		}
	}
	return true
}

// BuildLogs synthesizes the Contestant and Full judge logs once Settled
// or once no further test can be scheduled; a group that never settled
// scores 0.
// Per SPEC_FULL.md §15's open-question decision, the Contestant log
// unconditionally excludes the offline group's subtask row, matching the
// reference Valuer rather than the inconsistent alternative the spec
// flags. Both logs share the same is_full verdict: it reflects whether the
// solution is fully correct, not which groups a given kind discloses.
func (f *Fiber) BuildLogs() (contestant, full valuer.JudgeLog) {
	contestantGroups := []string{GroupSamples, GroupOnline}
	fullGroups := groupOrder

	isFull := f.allGroupsPassed()
	contestant = f.buildLog(valuer.Contestant, contestantGroups, isFull)
	full = f.buildLog(valuer.Full, fullGroups, isFull)
	return contestant, full
}

func (f *Fiber) buildLog(kind valuer.Kind, groups []string, isFull bool) valuer.JudgeLog {
	log := valuer.JudgeLog{Kind: kind, IsFull: isFull}
	weight, remainder := f.subtaskWeights(groups)

	var scoredNames []string
	for _, name := range groups {
		if name != GroupSamples && len(f.groups[name].testIDs) > 0 {
			scoredNames = append(scoredNames, name)
		}
	}
	lastScored := ""
	if len(scoredNames) > 0 {
		lastScored = scoredNames[len(scoredNames)-1]
	}

	for _, name := range groups {
		g := f.groups[name]
		// samples never contributes to the subtask score, matching
		// subtaskWeights/score: it is a prerequisite gate, not a scored
		// group.
		score := 0
		if name != GroupSamples && len(g.testIDs) > 0 && g.settled() && !g.failed {
			w := weight
			if name == lastScored {
				w += remainder
			}
			score = w
		}
		log.Subtasks = append(log.Subtasks, valuer.JudgeLogSubtaskRow{
			SubtaskID:  name,
			Score:      score,
			Visibility: valuer.StatusFlag,
		})
		log.Score += score

		for _, id := range g.testIDs {
			row := valuer.JudgeLogTestRow{TestID: id, Visibility: valuer.TestData | valuer.Output | valuer.StatusFlag | valuer.ResourceUsage}
			log.Tests = append(log.Tests, row)
		}
	}
	sort.Slice(log.Tests, func(i, j int) bool { return log.Tests[i].TestID < log.Tests[j].TestID })
	return log
}

// subtaskWeights splits 100 evenly across the scored groups (samples never
// scores), with any remainder folded into the last scored group so the
// log's score invariant (score == sum(subtasks[*].score)) holds exactly.
func (f *Fiber) subtaskWeights(groups []string) (weight, remainder int) {
	scored := 0
	for _, name := range groups {
		if name != GroupSamples && len(f.groups[name].testIDs) > 0 {
			scored++
		}
	}
	if scored == 0 {
		return 0, 0
	}
	return 100 / scored, 100 % scored
}

func (f *Fiber) score(groups []string) int {
	weight, remainder := f.subtaskWeights(groups)
	total := 0
	scoredSeen := 0
	scoredCount := 0
	for _, name := range groups {
		if name != GroupSamples && len(f.groups[name].testIDs) > 0 {
			scoredCount++
		}
	}
	for _, name := range groups {
		if name == GroupSamples || len(f.groups[name].testIDs) == 0 {
			continue
		}
		scoredSeen++
		g := f.groups[name]
		w := weight
		if scoredSeen == scoredCount {
			w += remainder
		}
		if g.settled() && !g.failed {
			total += w
		}
	}
	return total
}
