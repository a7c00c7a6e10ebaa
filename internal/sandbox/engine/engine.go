//go:build linux

// Package engine implements the parent side of the Sandbox runtime (spec
// §4.1): it drives one cmd/jjs-zygote process per sandbox into existence,
// speaks the control protocol to it, and owns the sandbox's cgroups. See
// SPEC_FULL.md §12 for why namespace entry and UID mapping are done via
// os/exec's Cloneflags/UidMappings instead of a literal fork()-based
// three-thread dance: Go forbids safe raw fork() in a multi-threaded
// runtime, and exec.Cmd's clone+exec already performs the equivalent
// handshake atomically before the child's first instruction runs.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"jjsgo/internal/sandbox/cgroup"
	"jjsgo/internal/sandbox/ids"
	"jjsgo/internal/sandbox/protocol"
	"jjsgo/internal/sandbox/result"
	"jjsgo/internal/sandbox/spec"
	pkgerrors "jjsgo/pkg/errors"
	"jjsgo/pkg/utils/logger"
)

const cgroupRoot = "/sys/fs/cgroup"

// Paths is the set of host binaries the engine needs to locate; normally
// resolved once at process start from the jjs-worker/jjs-judged install
// layout and threaded into every Sandbox.Create call.
type Paths struct {
	ZygotePath  string
	JobInitPath string
}

// ChildProcess is a handle to one job spawned inside a Sandbox. Pid is
// meaningful only inside the Zygote's own PID namespace; callers must route
// Wait/Kill back through the Sandbox rather than signalling Pid directly.
type ChildProcess struct {
	Pid int
}

// Sandbox is one running Zygote plus the cgroups and control channel used
// to drive it, the spec's "Sandbox" resource (§4.1).
type Sandbox struct {
	jailID  string
	hostUID int
	cgroups *cgroup.Handles

	cmd  *exec.Cmd
	conn *protocol.Conn

	watchdogR *os.File
	watchdog  chan result.WatchdogReason

	mu       sync.Mutex
	destroyed bool
}

// Create starts a fresh Zygote for opts and blocks until it reports ready,
// realizing spec §4.1's "Sandbox creation" operation.
func Create(opts spec.Options, paths Paths) (*Sandbox, error) {
	jailID := opts.JailID
	if jailID == "" {
		jailID = ids.NewJailID()
	}
	hostUID := ids.DeriveHostUID(jailID)

	cgroups, err := cgroup.Create(cgroupRoot, jailID)
	if err != nil {
		return nil, err
	}
	if err := cgroups.ApplyLimits(opts.Limits); err != nil {
		cgroups.Destroy()
		return nil, err
	}

	sb, err := startZygote(opts, paths, jailID, hostUID, cgroups)
	if err != nil {
		cgroups.Destroy()
		return nil, err
	}
	return sb, nil
}

func startZygote(opts spec.Options, paths Paths, jailID string, hostUID int, cgroups *cgroup.Handles) (*Sandbox, error) {
	controlParent, controlChild, err := protocol.Socketpair()
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.SandboxSetupFailed)
	}
	cpuUsageFile, err := cgroups.CPUAcctUsageFile()
	if err != nil {
		controlParent.Close()
		controlChild.Close()
		return nil, err
	}
	watchdogR, watchdogW, err := os.Pipe()
	if err != nil {
		controlParent.Close()
		controlChild.Close()
		cpuUsageFile.Close()
		return nil, pkgerrors.Wrap(err, pkgerrors.SandboxSetupFailed)
	}

	cmd := exec.Command(paths.ZygotePath)
	controlChildFile := os.NewFile(uintptr(controlChild.Fd()), "control")
	cmd.ExtraFiles = append(cmd.ExtraFiles, controlChildFile, cpuUsageFile, watchdogW)
	cmd.ExtraFiles = append(cmd.ExtraFiles, cgroups.JoinTokenFiles()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	exposedPathsJSON, err := json.Marshal(opts.ExposedPaths)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.SandboxSetupFailed)
	}
	cmd.Env = []string{
		"JJS_ISOLATION_ROOT=" + opts.IsolationRoot,
		"JJS_EXPOSED_PATHS=" + string(exposedPathsJSON),
		"JJS_CONTROL_FD=3",
		"JJS_CPU_USAGE_FD=4",
		"JJS_WATCHDOG_FD=5",
		fmt.Sprintf("JJS_CGROUP_FDS=%d,%d,%d", 6, 7, 8),
		fmt.Sprintf("JJS_CPU_LIMIT_MS=%d", opts.Limits.CPUTimeMs),
		fmt.Sprintf("JJS_REAL_LIMIT_MS=%d", opts.Limits.RealTimeLimitOrDefault()),
		"JJS_JOBINIT_PATH=" + paths.JobInitPath,
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: unix.CLONE_NEWPID | unix.CLONE_NEWNS | unix.CLONE_NEWUSER |
			unix.CLONE_NEWNET | unix.CLONE_NEWUTS | unix.CLONE_NEWIPC,
		UidMappings: []syscall.SysProcIDMap{{ContainerID: ids.SandboxUID, HostID: hostUID, Size: 1}},
		GidMappings: []syscall.SysProcIDMap{{ContainerID: ids.SandboxUID, HostID: hostUID, Size: 1}},
	}
	if !opts.EnableNamespace {
		cmd.SysProcAttr.Cloneflags = 0
	}

	if err := cmd.Start(); err != nil {
		controlParent.Close()
		controlChild.Close()
		return nil, pkgerrors.Wrapf(err, pkgerrors.SandboxSetupFailed, "start zygote")
	}
	controlChildFile.Close()
	watchdogW.Close()

	sb := &Sandbox{
		jailID:    jailID,
		hostUID:   hostUID,
		cgroups:   cgroups,
		cmd:       cmd,
		conn:      controlParent,
		watchdogR: watchdogR,
		watchdog:  make(chan result.WatchdogReason, 1),
	}
	go sb.watchWatchdog()

	if err := sb.awaitReady(); err != nil {
		sb.Destroy()
		return nil, err
	}
	logger.Infof(context.Background(), "sandbox %s: zygote ready (pid %d, host uid %d)", jailID, cmd.Process.Pid, hostUID)
	return sb, nil
}

func (sb *Sandbox) awaitReady() error {
	var resp protocol.Response
	if err := sb.conn.ReadMessage(&resp); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ZygoteSetupTimeout, "zygote never signalled ready")
	}
	if resp.Kind != protocol.ResponseReady {
		return pkgerrors.Newf(pkgerrors.ZygoteProtocolError, "unexpected first message from zygote: %s", resp.Kind)
	}
	return nil
}

func (sb *Sandbox) watchWatchdog() {
	buf := make([]byte, 1)
	n, err := sb.watchdogR.Read(buf)
	if err != nil || n == 0 {
		return
	}
	sb.watchdog <- result.WatchdogReason(buf[0])
}

// Spawn asks the Zygote to fork+exec one job, handing over its stdio triple
// out-of-band via SCM_RIGHTS. Ownership of stdio's files transfers to the
// call: they are closed once sent, per spec §4.1's "Spawn" operation.
func (sb *Sandbox) Spawn(job spec.JobQuery, stdio [3]*os.File) (*ChildProcess, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	if sb.destroyed {
		return nil, pkgerrors.New(pkgerrors.SandboxSpawnRejected).WithMessage("sandbox already destroyed")
	}

	if err := sb.conn.WriteMessage(protocol.Request{Kind: protocol.RequestSpawn, Spawn: &protocol.SpawnRequest{Job: job}}); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ZygoteProtocolError)
	}
	fds := []int{int(stdio[0].Fd()), int(stdio[1].Fd()), int(stdio[2].Fd())}
	if err := sb.conn.SendFDs(fds); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ZygoteProtocolError)
	}

	var resp protocol.Response
	if err := sb.conn.ReadMessage(&resp); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ZygoteProtocolError)
	}
	if resp.Kind == protocol.ResponseError {
		code := pkgerrors.JudgeSystemError
		if resp.Policy {
			code = pkgerrors.SandboxSpawnRejected
		}
		return nil, pkgerrors.New(code).WithMessage(resp.Error)
	}
	if resp.Kind != protocol.ResponseSpawned || resp.Spawned == nil {
		return nil, pkgerrors.Newf(pkgerrors.ZygoteProtocolError, "unexpected spawn response: %s", resp.Kind)
	}
	_ = sb.cgroups.TrackPID(resp.Spawned.Pid)
	return &ChildProcess{Pid: resp.Spawned.Pid}, nil
}

// Wait blocks (up to timeout, or forever when timeout<=0) for child to
// finish, folding in the watchdog's verdict if it fired first.
func (sb *Sandbox) Wait(child *ChildProcess, timeout time.Duration) (result.RunResult, error) {
	sb.mu.Lock()
	req := protocol.Request{Kind: protocol.RequestPoll, Poll: &protocol.PollRequest{Pid: child.Pid, TimeoutMs: int(timeout.Milliseconds())}}
	if err := sb.conn.WriteMessage(req); err != nil {
		sb.mu.Unlock()
		return result.RunResult{}, pkgerrors.Wrap(err, pkgerrors.ZygoteProtocolError)
	}
	var resp protocol.Response
	err := sb.conn.ReadMessage(&resp)
	sb.mu.Unlock()
	if err != nil {
		return result.RunResult{}, pkgerrors.Wrap(err, pkgerrors.ZygoteProtocolError)
	}
	if resp.Kind != protocol.ResponseWait || resp.Wait == nil {
		return result.RunResult{}, pkgerrors.Newf(pkgerrors.ZygoteProtocolError, "unexpected wait response: %s", resp.Kind)
	}

	rr := result.RunResult{ExitCode: resp.Wait.Code}
	select {
	case reason := <-sb.watchdog:
		rr.WatchdogReason = reason
	default:
	}
	if cpuNs, memPeak, err := sb.cgroups.Usage(); err == nil {
		rr.CPUTimeMs = cpuNs / 1_000_000
		rr.MemoryPeakKB = memPeak / 1024
	}
	rr.OomKilled = sb.cgroups.OomKilled()
	return rr, nil
}

// Kill asks the Zygote to signal pid's process group, routing through the
// Zygote since only it has the PID namespace needed to resolve pid at all.
func (sb *Sandbox) Kill(child *ChildProcess) error {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	req := protocol.Request{Kind: protocol.RequestKill, Kill: &protocol.KillRequest{Pid: child.Pid, Signal: int(syscall.SIGKILL)}}
	if err := sb.conn.WriteMessage(req); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ZygoteProtocolError)
	}
	var resp protocol.Response
	if err := sb.conn.ReadMessage(&resp); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ZygoteProtocolError)
	}
	if resp.Kind == protocol.ResponseError {
		return pkgerrors.New(pkgerrors.JudgeSystemError).WithMessage(resp.Error)
	}
	return nil
}

// ResourceUsage reports cumulative CPU time and peak memory for the
// sandbox's lifetime so far, the spec's §4.1 "Resource usage" operation.
func (sb *Sandbox) ResourceUsage() (cpuTimeNs int64, memoryPeakBytes int64, err error) {
	return sb.cgroups.Usage()
}

// Destroy tells the Zygote to exit, kills any surviving jobs via the
// auxiliary tracker cgroup, and tears down the cgroup hierarchy. Safe to
// call more than once.
func (sb *Sandbox) Destroy() error {
	sb.mu.Lock()
	if sb.destroyed {
		sb.mu.Unlock()
		return nil
	}
	sb.destroyed = true
	sb.mu.Unlock()

	_ = sb.conn.WriteMessage(protocol.Request{Kind: protocol.RequestExit})
	_ = sb.conn.Close()

	done := make(chan struct{})
	go func() { sb.cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		if sb.cmd.Process != nil {
			_ = sb.cmd.Process.Kill()
		}
		<-done
	}

	_ = sb.cgroups.KillAll()
	if err := sb.cgroups.Destroy(); err != nil {
		return err
	}
	return nil
}
