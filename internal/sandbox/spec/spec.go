// Package spec defines the data model shared between the Sandbox engine
// (parent side) and the Zygote process it drives: resource limits, bind
// mount requests, and the description of a single job to run inside a
// sandbox.
package spec

// Access describes how an exposed path is visible inside the sandbox.
type Access int

const (
	// Readonly exposes the path read-only (bind mount, then MS_REMOUNT|MS_RDONLY).
	Readonly Access = iota
	// Full exposes the path read-write.
	Full
)

// ExposedPath is one "exposition": a bind-mounted path made visible inside
// a sandbox. Dest is re-rooted relative to the chroot regardless of a
// leading slash.
type ExposedPath struct {
	Src    string `json:"src"`
	Dest   string `json:"dest"`
	Access Access `json:"access"`
}

// ResourceLimit bounds one sandboxed step. Zero means "not set"; merging
// rules are described in SPEC_FULL.md §3/§15.
type ResourceLimit struct {
	MemoryBytes     int64 `json:"memory_bytes"`
	CPUTimeMs       int64 `json:"cpu_time_ms"`
	RealTimeMs      int64 `json:"real_time_ms"`
	MaxAliveProcess int   `json:"max_alive_process"`
}

// Merge overlays the non-zero fields of more onto r, following the spec's
// "None fields inherit from the next-less-specific scope" rule.
func (r ResourceLimit) Merge(more ResourceLimit) ResourceLimit {
	out := r
	if more.MemoryBytes != 0 {
		out.MemoryBytes = more.MemoryBytes
	}
	if more.CPUTimeMs != 0 {
		out.CPUTimeMs = more.CPUTimeMs
	}
	if more.RealTimeMs != 0 {
		out.RealTimeMs = more.RealTimeMs
	}
	if more.MaxAliveProcess != 0 {
		out.MaxAliveProcess = more.MaxAliveProcess
	}
	return out
}

// RealTimeLimitOrDefault returns RealTimeMs, defaulting to 3x CPUTimeMs when
// unset, matching the spec's "typically 3x cpu-time-limit" note.
func (r ResourceLimit) RealTimeLimitOrDefault() int64 {
	if r.RealTimeMs > 0 {
		return r.RealTimeMs
	}
	return r.CPUTimeMs * 3
}

// Options configures sandbox creation (the spec's "Sandbox Options").
type Options struct {
	JailID          string        `json:"jail_id"`
	IsolationRoot   string        `json:"isolation_root"`
	ExposedPaths    []ExposedPath `json:"exposed_paths"`
	Limits          ResourceLimit `json:"limits"`
	EnableNamespace bool          `json:"enable_namespace"`
}

// Command is one argv/env/cwd triple, immutable after construction.
type Command struct {
	Argv []string `json:"argv"`
	Env  []string `json:"env"`
	Cwd  string   `json:"cwd"`
}

// JobQuery is what the Worker asks the Zygote to spawn: a command plus
// stdio path fields. The job's FD 0/1/2 come from the file triple passed
// to Sandbox.Spawn over SCM_RIGHTS; neither the Zygote nor jjs-jobinit
// reads StdinPath, StdoutPath or StderrPath.
type JobQuery struct {
	Command    Command `json:"command"`
	StdinPath  string  `json:"stdin_path"`
	StdoutPath string  `json:"stdout_path"`
	StderrPath string  `json:"stderr_path"`

	// SeccompProfilePath, when non-empty, names a JSON seccomp profile
	// visible inside the chroot that jjs-jobinit loads and installs with
	// libseccomp-golang immediately before execve (spec §4.1's job child
	// sequence, last step before exec).
	SeccompProfilePath string `json:"seccomp_profile_path,omitempty"`
}
