// Command jjs-jobinit is the "job child sequence" helper from spec §4.1.
// The Zygote forks (via os/exec, itself a safe clone+exec) one instance of
// this binary per spawned job, handing it the job's stdio triple and the
// sandbox's preserved cgroup join-token file descriptors as ExtraFiles.
// It is narrowed from the teacher's cmd/sandbox-init/main.go: mounts,
// chroot and rlimits are already done once by the Zygote itself, so this
// binary only joins cgroups, sweeps CLOEXEC, drops privilege, waits for
// permission, and execve()s.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"

	"jjsgo/internal/sandbox/protocol"
	"jjsgo/internal/sandbox/spec"
)

// Extra file descriptor layout, fixed by the Zygote's spawnJob (see
// internal/sandbox/zygote/zygote.go): 3=job stdin, 4=job stdout,
// 5=job stderr, 6=EXECVE_PERMITTED handshake socket, 7/8/9=cgroup tasks
// files (cpuacct, pids, memory).
const (
	fdJobStdin  = 3
	fdJobStdout = 4
	fdJobStderr = 5
	fdPerm      = 6
	fdCgroupLo  = 7
	fdCgroupHi  = 9
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jjs-jobinit: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var job spec.JobQuery
	if err := json.NewDecoder(os.Stdin).Decode(&job); err != nil {
		return fmt.Errorf("decode job query: %w", err)
	}

	if err := joinCgroups(); err != nil {
		return fmt.Errorf("join cgroups: %w", err)
	}
	if err := sweepCloexec(); err != nil {
		return fmt.Errorf("cloexec sweep: %w", err)
	}
	if job.Command.Cwd != "" {
		if err := os.Chdir(job.Command.Cwd); err != nil {
			return fmt.Errorf("chdir %s: %w", job.Command.Cwd, err)
		}
	}
	if err := unix.Setgid(179); err != nil {
		return fmt.Errorf("setgid: %w", err)
	}
	if err := unix.Setuid(179); err != nil {
		return fmt.Errorf("setuid: %w", err)
	}

	if err := awaitExecvePermitted(); err != nil {
		return fmt.Errorf("await execve permitted: %w", err)
	}

	if err := redirectStdio(); err != nil {
		return fmt.Errorf("redirect stdio: %w", err)
	}

	if job.SeccompProfilePath != "" {
		if err := applySeccomp(job.SeccompProfilePath); err != nil {
			return fmt.Errorf("apply seccomp profile %s: %w", job.SeccompProfilePath, err)
		}
	}

	return execJob(job.Command)
}

func joinCgroups() error {
	pid := strconv.Itoa(os.Getpid())
	for fd := fdCgroupLo; fd <= fdCgroupHi; fd++ {
		if _, err := unix.Write(fd, []byte(pid)); err != nil {
			return fmt.Errorf("write pid to cgroup fd %d: %w", fd, err)
		}
	}
	return nil
}

// sweepCloexec marks every open fd except the job's stdio triple as
// close-on-exec, per spec §4.1's job child sequence.
func sweepCloexec() error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return err
	}
	keep := map[int]bool{fdJobStdin: true, fdJobStdout: true, fdJobStderr: true}
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil || keep[fd] {
			continue
		}
		_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
	}
	return nil
}

func awaitExecvePermitted() error {
	conn := protocol.NewConn(fdPerm)
	var resp protocol.Response
	if err := conn.ReadMessage(&resp); err != nil {
		return err
	}
	if resp.Kind != protocol.ResponseReady {
		return fmt.Errorf("unexpected handshake response: %s", resp.Kind)
	}
	return nil
}

func redirectStdio() error {
	if err := unix.Dup2(fdJobStdin, 0); err != nil {
		return err
	}
	if err := unix.Dup2(fdJobStdout, 1); err != nil {
		return err
	}
	if err := unix.Dup2(fdJobStderr, 2); err != nil {
		return err
	}
	return nil
}

func execJob(cmd spec.Command) error {
	if len(cmd.Argv) == 0 {
		return fmt.Errorf("empty argv")
	}
	path := cmd.Argv[0]
	err := unix.Exec(path, cmd.Argv, cmd.Env)
	if err == unix.ENOENT {
		printDiagnostics(path)
		os.Exit(108)
	}
	return err
}

// applySeccomp loads a JSON seccomp profile and installs it as the job's
// syscall filter, the very last step before execve. Narrowed from the
// teacher's cmd/sandbox-init/main.go applySeccomp: namespaces are already
// the Zygote's/engine's concern here, so this builds the filter from the
// per-toolchain profile, sets PR_SET_NO_NEW_PRIVS, and loads the filter.
func applySeccomp(profilePath string) error {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			if err := filter.AddRuleExact(name, action); err != nil {
				return fmt.Errorf("add seccomp rule: %w", err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}

// printDiagnostics implements the ENOENT diagnostic from spec §4.1 and
// testable scenario 5, grounded on original_source's
// minion::linux::zygote::print_diagnostics: walk the requested path from
// the root, report the longest prefix that actually exists, and list that
// directory's contents.
func printDiagnostics(path string) {
	fmt.Fprintf(os.Stderr, "execve(%q) failed: ENOENT\n", path)
	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	existing := "/"
	for _, part := range parts {
		if part == "" {
			continue
		}
		next := filepath.Join(existing, part)
		if _, err := os.Stat(next); err != nil {
			break
		}
		existing = next
	}
	fmt.Fprintf(os.Stderr, "longest existing prefix: %s\n", existing)
	entries, err := os.ReadDir(existing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "(could not list %s: %v)\n", existing, err)
		return
	}
	fmt.Fprintf(os.Stderr, "contents of %s:\n", existing)
	for _, e := range entries {
		fmt.Fprintf(os.Stderr, "  %s\n", e.Name())
	}
}
