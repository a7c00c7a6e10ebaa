//go:build linux

// Package zygote implements the long-lived in-jail process described in
// spec §4.1: it performs the Zygote setup sequence (expositions, proc
// mount, chroot) once, then serves Spawn/Poll/Exit requests over a control
// socket for the remainder of its life. It is the body of cmd/jjs-zygote;
// see SPEC_FULL.md §12 for how this realizes the spec's three-thread dance
// and job-init handoff using Go's os/exec instead of raw fork().
package zygote

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"jjsgo/internal/sandbox/protocol"
	"jjsgo/internal/sandbox/result"
	"jjsgo/internal/sandbox/spec"
)

// Config describes everything the Zygote needs at start, all delivered via
// inherited file descriptors and environment (see cmd/jjs-zygote/main.go).
type Config struct {
	IsolationRoot string
	ExposedPaths  []spec.ExposedPath
	ControlFD     int // raw fd of this process's end of the control socketpair

	CgroupJoinFDs []int // 3 "tasks" file FDs: cpuacct, pids, memory, in that order
	CPUUsageFD    int   // pre-opened cpuacct.usage read handle, survives chroot
	WatchdogFD    int   // write end of the notification pipe (one byte reason code)

	CPULimitMs  int64
	RealLimitMs int64

	JobInitPath string // path to the jjs-jobinit helper binary
}

// Run performs the Zygote setup sequence, signals readiness, then serves
// requests until it receives Exit or its control socket closes.
func Run(cfg Config) error {
	if err := applyExpositions(cfg.IsolationRoot, cfg.ExposedPaths); err != nil {
		return fmt.Errorf("expositions: %w", err)
	}
	if err := mountProc(cfg.IsolationRoot); err != nil {
		return fmt.Errorf("mount proc: %w", err)
	}
	if err := unix.Chroot(cfg.IsolationRoot); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}

	conn := protocol.NewConn(cfg.ControlFD)
	defer conn.Close()

	z := &zygote{cfg: cfg, conn: conn}
	z.installSigterm()
	z.startWatchdog()

	if err := conn.WriteMessage(protocol.Response{Kind: protocol.ResponseReady}); err != nil {
		return fmt.Errorf("signal ready: %w", err)
	}
	return z.requestLoop()
}

type zygote struct {
	cfg        Config
	conn       *protocol.Conn
	currentPID atomic.Int32
	mu         sync.Mutex
}

func (z *zygote) installSigterm() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM)
	go func() {
		<-ch
		os.Exit(9)
	}()
}

// startWatchdog implements spec §4.1 step 7: poll cpuacct.usage once a
// second, compare against the cpu/real-time limits, and on breach write the
// one-byte reason code before killing the job's process group.
func (z *zygote) startWatchdog() {
	if z.cfg.CPUUsageFD == 0 || (z.cfg.CPULimitMs == 0 && z.cfg.RealLimitMs == 0) {
		return
	}
	usageFile := os.NewFile(uintptr(z.cfg.CPUUsageFD), "cpuacct.usage")
	start := time.Now()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for range ticker.C {
			reason := result.ReasonNone
			if z.cfg.CPULimitMs > 0 {
				if ns, err := readUsage(usageFile); err == nil && ns/1e6 >= z.cfg.CPULimitMs {
					reason = result.ReasonCPU
				}
			}
			if reason == result.ReasonNone && z.cfg.RealLimitMs > 0 {
				if time.Since(start).Milliseconds() >= z.cfg.RealLimitMs {
					reason = result.ReasonReal
				}
			}
			if reason != result.ReasonNone {
				if z.cfg.WatchdogFD != 0 {
					_, _ = unix.Write(z.cfg.WatchdogFD, []byte{byte(reason)})
				}
				if pid := z.currentPID.Load(); pid > 0 {
					_ = unix.Kill(int(-pid), unix.SIGKILL)
				}
				return
			}
		}
	}()
}

func readUsage(f *os.File) (int64, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, err
	}
	buf := make([]byte, 32)
	n, err := f.Read(buf)
	if err != nil {
		return 0, err
	}
	var v int64
	_, err = fmt.Sscanf(string(buf[:n]), "%d", &v)
	return v, err
}

// requestLoop serves Spawn/Poll/Exit requests until the control connection
// closes or an Exit request arrives.
func (z *zygote) requestLoop() error {
	for {
		var req protocol.Request
		if err := z.conn.ReadMessage(&req); err != nil {
			return nil // control socket closed: parent is gone, exit cleanly
		}
		switch req.Kind {
		case protocol.RequestSpawn:
			z.handleSpawn(req.Spawn)
		case protocol.RequestPoll:
			z.handlePoll(req.Poll)
		case protocol.RequestKill:
			z.handleKill(req.Kill)
		case protocol.RequestExit:
			return nil
		default:
			_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseError, Error: "unknown request kind"})
		}
	}
}

func (z *zygote) handleSpawn(req *protocol.SpawnRequest) {
	if req == nil {
		_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseError, Error: "empty spawn request"})
		return
	}
	fds, err := z.conn.RecvFDs(3)
	if err != nil || len(fds) != 3 {
		_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseError, Error: fmt.Sprintf("recv stdio fds: %v", err)})
		return
	}
	pid, err := z.spawnJob(req.Job, fds)
	if err != nil {
		_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseError, Error: err.Error(), Policy: isPolicyErr(err)})
		return
	}
	z.currentPID.Store(int32(pid))
	_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseSpawned, Spawned: &protocol.SpawnedInfo{Pid: pid}})
}

// spawnJob realizes spec §4.1's "Job child sequence" by starting the
// jjs-jobinit helper binary (cgroup join, CLOEXEC sweep, setgid/setuid,
// dup2 stdio, execve) with the job's stdio triple and the preserved
// cgroup join-token FDs as ExtraFiles, plus a private socketpair used for
// the EXECVE_PERMITTED handshake.
func (z *zygote) spawnJob(job spec.JobQuery, stdio []int) (int, error) {
	permParent, permChild, err := protocol.Socketpair()
	if err != nil {
		return 0, err
	}
	defer permParent.Close()

	cmd := exec.Command(z.cfg.JobInitPath)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = append(cmd.ExtraFiles,
		os.NewFile(uintptr(stdio[0]), "stdin"),
		os.NewFile(uintptr(stdio[1]), "stdout"),
		os.NewFile(uintptr(stdio[2]), "stderr"),
		os.NewFile(uintptr(permChild.Fd()), "perm"),
	)
	for i, fd := range z.cfg.CgroupJoinFDs {
		cmd.ExtraFiles = append(cmd.ExtraFiles, os.NewFile(uintptr(fd), fmt.Sprintf("cgroup-%d", i)))
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return 0, err
	}
	go func() {
		defer stdinPipe.Close()
		_ = json.NewEncoder(stdinPipe).Encode(job)
	}()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start job-init: %w", err)
	}
	permChild.Close()

	if err := permParent.WriteMessage(protocol.Response{Kind: protocol.ResponseReady}); err != nil {
		return 0, fmt.Errorf("signal execve permitted: %w", err)
	}
	return cmd.Process.Pid, nil
}

// handleKill signals pid from inside the Zygote's own PID namespace, where
// process-group signalling via the negative pid trick actually resolves.
func (z *zygote) handleKill(req *protocol.KillRequest) {
	if req == nil {
		_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseError, Error: "empty kill request"})
		return
	}
	sig := syscall.Signal(req.Signal)
	if sig == 0 {
		sig = syscall.SIGKILL
	}
	err := unix.Kill(-req.Pid, sig)
	if err != nil {
		_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseError, Error: err.Error()})
		return
	}
	_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseWait, Wait: &protocol.WaitInfo{Finished: true}})
}

func (z *zygote) handlePoll(req *protocol.PollRequest) {
	if req == nil {
		_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseError, Error: "empty poll request"})
		return
	}
	code, finished := waitNonBlocking(req.Pid, time.Duration(req.TimeoutMs)*time.Millisecond)
	_ = z.conn.WriteMessage(protocol.Response{Kind: protocol.ResponseWait, Wait: &protocol.WaitInfo{Finished: finished, Code: code}})
}

// waitNonBlocking polls for pid's termination up to timeout, implementing
// the spec's ppoll-based timed_wait using a waiter goroutine + channel in
// place of a second waiter thread plus a pipe.
func waitNonBlocking(pid int, timeout time.Duration) (code int, finished bool) {
	done := make(chan int, 1)
	go func() {
		var ws unix.WaitStatus
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err != nil {
			done <- 0
			return
		}
		if ws.Exited() {
			done <- ws.ExitStatus()
		} else if ws.Signaled() {
			done <- -int(ws.Signal())
		} else {
			done <- 0
		}
	}()
	if timeout <= 0 {
		return <-done, true
	}
	select {
	case c := <-done:
		return c, true
	case <-time.After(timeout):
		return 0, false
	}
}

func isPolicyErr(err error) bool {
	_, ok := err.(*policyError)
	return ok
}

type policyError struct{ msg string }

func (p *policyError) Error() string { return p.msg }

func applyExpositions(root string, paths []spec.ExposedPath) error {
	for _, p := range paths {
		dest := filepath.Join(root, filepath.Clean("/"+p.Dest))
		info, err := os.Stat(p.Src)
		if err != nil {
			return fmt.Errorf("stat exposition src %s: %w", p.Src, err)
		}
		if info.IsDir() {
			if err := os.MkdirAll(dest, 0755); err != nil {
				return fmt.Errorf("mkdir exposition dest %s: %w", dest, err)
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(dest, os.O_CREATE|os.O_RDONLY, 0644)
			if err != nil {
				return fmt.Errorf("create exposition dest %s: %w", dest, err)
			}
			f.Close()
		}
		if err := unix.Mount(p.Src, dest, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind mount %s -> %s: %w", p.Src, dest, err)
		}
		if p.Access == spec.Readonly {
			if err := unix.Mount("", dest, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("readonly remount %s: %w", dest, err)
			}
		}
	}
	return nil
}

func mountProc(root string) error {
	procDir := filepath.Join(root, "proc")
	if err := os.MkdirAll(procDir, 0755); err != nil {
		return err
	}
	return unix.Mount("proc", procDir, "proc", 0, "")
}
