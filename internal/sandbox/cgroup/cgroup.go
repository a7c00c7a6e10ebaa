// Package cgroup manages the v1 cgroup hierarchies a sandbox uses for
// memory/pids/cpuacct accounting, grounded on the teacher's
// judge_service/internal/sandbox/engine/cgroup_linux.go but generalized to
// the spec's exact layout: cpuacct/pids/memory under
// /sys/fs/cgroup/<subsys>/jjs/g-<jail-id>, plus a sibling
// pids/jjs/g-<jail-id>-ex auxiliary tracker cgroup used for reliable
// kill-all on destroy (spec §6).
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	pkgerrors "jjsgo/pkg/errors"
	"jjsgo/internal/sandbox/spec"
)

const (
	subsysCPUAcct = "cpuacct"
	subsysPids    = "pids"
	subsysMemory  = "memory"
)

// Handles holds the open state of one sandbox's cgroups: their paths and
// the long-lived "tasks" file descriptors jobs join after losing cgroupfs
// path access inside the chroot (spec §4.1 step 6, §9 "Long-lived cgroup
// task-file descriptors").
type Handles struct {
	Root    string
	JailID  string
	Paths   map[string]string // subsystem -> absolute dir path
	Tasks   map[string]*os.File // subsystem -> open "tasks" (or cgroup.procs) file
	AuxPath string              // pids/jjs/g-<id>-ex, the host-side kill-all tracker
}

func groupPath(root, subsys, jailID string) string {
	return filepath.Join(root, subsys, "jjs", "g-"+jailID)
}

// Create makes the three per-sandbox cgroup directories plus the auxiliary
// tracker cgroup, and opens each "tasks" file as a long-lived FD.
func Create(root, jailID string) (*Handles, error) {
	h := &Handles{
		Root:   root,
		JailID: jailID,
		Paths:  make(map[string]string, 3),
		Tasks:  make(map[string]*os.File, 3),
	}
	for _, subsys := range []string{subsysCPUAcct, subsysPids, subsysMemory} {
		dir := groupPath(root, subsys, jailID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			h.Close()
			return nil, pkgerrors.Wrapf(err, pkgerrors.CgroupError, "mkdir cgroup %s", dir)
		}
		h.Paths[subsys] = dir
		f, err := os.OpenFile(filepath.Join(dir, "tasks"), os.O_RDWR, 0)
		if err != nil {
			h.Close()
			return nil, pkgerrors.Wrapf(err, pkgerrors.CgroupError, "open tasks file %s", dir)
		}
		h.Tasks[subsys] = f
	}
	h.AuxPath = groupPath(root, subsysPids, jailID+"-ex")
	if err := os.MkdirAll(h.AuxPath, 0755); err != nil {
		h.Close()
		return nil, pkgerrors.Wrapf(err, pkgerrors.CgroupError, "mkdir aux cgroup %s", h.AuxPath)
	}
	return h, nil
}

// ApplyLimits writes pids.max, memory.swappiness and memory.limit_in_bytes
// per the resource limit, as spec §4.1 step 6 describes.
func (h *Handles) ApplyLimits(limits spec.ResourceLimit) error {
	if limits.MaxAliveProcess > 0 {
		if err := writeFile(filepath.Join(h.Paths[subsysPids], "pids.max"), strconv.Itoa(limits.MaxAliveProcess)); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CgroupError)
		}
	}
	if limits.MemoryBytes > 0 {
		if err := writeFile(filepath.Join(h.Paths[subsysMemory], "memory.swappiness"), "0"); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CgroupError)
		}
		if err := writeFile(filepath.Join(h.Paths[subsysMemory], "memory.limit_in_bytes"), strconv.FormatInt(limits.MemoryBytes, 10)); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CgroupError)
		}
	}
	return nil
}

// JoinTokenFiles returns the open "tasks" files in a stable order, for
// passing down to the Zygote (and from there, to job-init) as ExtraFiles.
func (h *Handles) JoinTokenFiles() []*os.File {
	return []*os.File{h.Tasks[subsysCPUAcct], h.Tasks[subsysPids], h.Tasks[subsysMemory]}
}

// subsystemPath returns the directory Create made for subsys, or
// ErrNoSuchSubsystem if this Handles was never given one (the caller asked
// about a subsystem Create doesn't manage).
func (h *Handles) subsystemPath(subsys string) (string, error) {
	dir, ok := h.Paths[subsys]
	if !ok {
		return "", ErrNoSuchSubsystem
	}
	return dir, nil
}

// CPUAcctUsageFile opens a fresh read handle to cpuacct.usage, suitable for
// passing to the Zygote's watchdog as an ExtraFiles entry: reads against an
// already-open FD survive chroot even though the path does not.
func (h *Handles) CPUAcctUsageFile() (*os.File, error) {
	dir, err := h.subsystemPath(subsysCPUAcct)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(dir, "cpuacct.usage"))
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CgroupError)
	}
	return f, nil
}

// Usage reads cpuacct.usage (nanoseconds) and memory.max_usage_in_bytes
// (bytes), the spec's §4.1 "Resource usage" operation.
func (h *Handles) Usage() (cpuNs int64, memPeakBytes int64, err error) {
	cpuDir, err := h.subsystemPath(subsysCPUAcct)
	if err != nil {
		return 0, 0, err
	}
	memDir, err := h.subsystemPath(subsysMemory)
	if err != nil {
		return 0, 0, err
	}
	cpuNs, err = readInt(filepath.Join(cpuDir, "cpuacct.usage"))
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, pkgerrors.CgroupError)
	}
	memPeakBytes, err = readInt(filepath.Join(memDir, "memory.max_usage_in_bytes"))
	if err != nil {
		return cpuNs, 0, pkgerrors.Wrap(err, pkgerrors.CgroupError)
	}
	return cpuNs, memPeakBytes, nil
}

// OomKilled reports whether the kernel OOM-killed a process in this
// sandbox's memory cgroup.
func (h *Handles) OomKilled() bool {
	n, err := readInt(filepath.Join(h.Paths[subsysMemory], "memory.failcnt"))
	return err == nil && n > 0
}

// TrackPID adds pid to the auxiliary tracker cgroup, from the host side,
// so that KillAll can reliably enumerate every process the sandbox ever
// spawned (the job's own cgroup membership is joined by job-init itself via
// the preserved tasks FDs; the aux cgroup is a host-only safety net).
func (h *Handles) TrackPID(pid int) error {
	return writeFile(filepath.Join(h.AuxPath, "tasks"), strconv.Itoa(pid))
}

// KillAll sends SIGKILL to every pid listed in the auxiliary tracker
// cgroup, the spec's "destroy... kills every PID enumerated in the
// auxiliary pids cgroup" (§4.1 Cleanup).
func (h *Handles) KillAll() error {
	data, err := os.ReadFile(filepath.Join(h.AuxPath, "tasks"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pkgerrors.Wrap(err, pkgerrors.CgroupError)
	}
	for _, line := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		_ = killPID(pid)
	}
	return nil
}

// Destroy closes the join-token FDs and removes all four cgroup
// directories. Safe to call more than once.
func (h *Handles) Destroy() error {
	h.Close()
	var firstErr error
	for _, dir := range h.Paths {
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	if h.AuxPath != "" {
		if err := os.Remove(h.AuxPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return pkgerrors.Wrap(firstErr, pkgerrors.CgroupError)
	}
	return nil
}

// Close releases the open join-token file descriptors without removing the
// directories (used on the error path of Create, and internally by Destroy).
func (h *Handles) Close() {
	for _, f := range h.Tasks {
		if f != nil {
			_ = f.Close()
		}
	}
}

func writeFile(path, value string) error {
	return os.WriteFile(path, []byte(value), 0644)
}

func readInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

var killPID = func(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// ErrNoSuchSubsystem is returned when a caller asks for usage data on a
// subsystem Create never set up.
var ErrNoSuchSubsystem = fmt.Errorf("cgroup: no such subsystem")
