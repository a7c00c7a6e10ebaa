// Package model holds the judge pipeline's data model (spec §3): problem
// manifests, toolchains, the public and lowered judge request shapes, and
// the abstractions the core treats its external collaborators through
// (Task Source, Problem Loader, Toolchain Loader).
package model

import (
	"github.com/google/uuid"

	sandboxspec "jjsgo/internal/sandbox/spec"
)

// FileRoot names which directory a FileRef is relative to.
type FileRoot int

const (
	// RootProblem resolves relative to the problem directory.
	RootProblem FileRoot = iota
	// RootDir resolves relative to an otherwise-fixed root (e.g. the
	// toolchain root, or the request's own output directory).
	RootDir
)

// FileRef is a (root, relative-path) pair; Resolve yields an absolute path.
type FileRef struct {
	Root FileRoot `json:"root"`
	Path string   `json:"path"`
}

// Resolve joins the ref against the appropriate base directory.
func (f FileRef) Resolve(problemDir, otherRoot string) string {
	switch f.Root {
	case RootProblem:
		return joinPath(problemDir, f.Path)
	default:
		return joinPath(otherRoot, f.Path)
	}
}

func joinPath(base, rel string) string {
	if rel == "" {
		return base
	}
	if base == "" {
		return rel
	}
	return base + "/" + rel
}

// Limits bounds one compile or execute step before lowering into a
// sandbox.ResourceLimit. ProcessCount is a pointer because spec §15's open
// question decision distinguishes "unset" (nil, inherit) from an explicit
// 0 ("no additional processes").
type Limits struct {
	MemoryBytes  int64 `json:"memory_bytes"`
	TimeMs       int64 `json:"time_ms"`
	ProcessCount *int  `json:"process_count"`
}

// Merge overlays more's set fields onto l, following the merge order
// toolchain-defaults ← problem-defaults ← per-test (spec §3).
func (l Limits) Merge(more Limits) Limits {
	out := l
	if more.MemoryBytes != 0 {
		out.MemoryBytes = more.MemoryBytes
	}
	if more.TimeMs != 0 {
		out.TimeMs = more.TimeMs
	}
	if more.ProcessCount != nil {
		out.ProcessCount = more.ProcessCount
	}
	return out
}

// ToSandboxLimit lowers to the sandbox runtime's resource limit type.
func (l Limits) ToSandboxLimit() sandboxspec.ResourceLimit {
	rl := sandboxspec.ResourceLimit{MemoryBytes: l.MemoryBytes, CPUTimeMs: l.TimeMs}
	if l.ProcessCount != nil {
		rl.MaxAliveProcess = *l.ProcessCount
	}
	return rl
}

// Command is an argv/env/cwd triple, still carrying unresolved $(Key)
// template patterns until Interpolate runs.
type Command struct {
	Argv []string `json:"argv"`
	Env  []string `json:"env"`
	Cwd  string   `json:"cwd"`
}

// Test is one problem test case (spec §3).
type Test struct {
	Path   FileRef  `json:"path"`
	Answer *FileRef `json:"answer,omitempty"`
	Limits Limits   `json:"limits"`
	Group  string   `json:"group"`
}

// ProblemManifest is the resolved description of one problem (spec §3).
type ProblemManifest struct {
	Name            string   `json:"name"`
	Title           string   `json:"title"`
	Tests           []Test   `json:"tests"`
	CheckerExe      FileRef  `json:"checker_exe"`
	CheckerArgvTail []string `json:"checker_argv_tail"`
	ValuerExe       FileRef  `json:"valuer_exe"`
	ValuerConfig    FileRef  `json:"valuer_config"`
}

// Toolchain resolves a toolchain-id to compile/execute command templates,
// default limits, and a root directory (the Toolchain Loader's output).
type Toolchain struct {
	ID              string    `json:"id"`
	Root            string    `json:"root"`
	CompileCommands []Command `json:"compile_commands"`
	ExecuteCommand  Command   `json:"execute_command"`
	CompileLimits   Limits    `json:"compile_limits"`
	ExecuteLimits   Limits    `json:"execute_limits"`
	SourceFileName  string    `json:"source_file_name"`
	// SeccompProfilePath, when set, names a JSON seccomp profile (the
	// same shape cmd/sandbox-init's applySeccomp read) that jjs-jobinit
	// loads and applies to the execute step before execve. Empty means
	// no filter is installed for this toolchain.
	SeccompProfilePath string `json:"seccomp_profile_path,omitempty"`
}

// JudgeRequest is the public input the controller accepts from a Task
// Source (spec §3): request-id, toolchain-id, problem-id, and the raw
// submitted source bytes.
type JudgeRequest struct {
	RequestID  uuid.UUID `json:"request_id"`
	ToolchainID string   `json:"toolchain_id"`
	ProblemID  string    `json:"problem_id"`
	RunSource  []byte    `json:"run_source"`
}

// LoweredJudgeRequest is what the controller hands a Worker after
// resolving problem/toolchain, interpolating templates, and materializing
// the source into a scratch file (spec §3).
type LoweredJudgeRequest struct {
	RequestID uuid.UUID `json:"request_id"`

	CompileCommands []sandboxspec.Command      `json:"compile_commands"`
	ExecuteCommand  sandboxspec.Command        `json:"execute_command"`
	CompileLimits   sandboxspec.ResourceLimit  `json:"compile_limits"`
	ExecuteLimits   sandboxspec.ResourceLimit  `json:"execute_limits"`

	Problem        *ProblemManifest `json:"problem"`
	ProblemDir     string           `json:"problem_dir"`
	SourceFileName string           `json:"source_file_name"`
	ToolchainRoot  string           `json:"toolchain_root"`
	SourcePath     string           `json:"source_path"`
	OutDir         string           `json:"out_dir"`

	SeccompProfilePath string `json:"seccomp_profile_path,omitempty"`
}

// ProblemLoader resolves a problem-id to its manifest and directory. The
// core treats the actual PPC-produced problem package layout as opaque;
// this is the abstract boundary spec §1 names as an external collaborator.
type ProblemLoader interface {
	Load(problemID string) (manifest *ProblemManifest, problemDir string, err error)
}

// ToolchainLoader resolves a toolchain-id to its compile/execute templates
// and root directory, spec §1's other named external collaborator.
type ToolchainLoader interface {
	Load(toolchainID string) (*Toolchain, error)
}
