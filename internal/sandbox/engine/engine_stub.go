//go:build !linux

// Package engine's sandbox runtime depends on Linux namespaces and
// cgroups; on other platforms the same API is exposed but every operation
// fails, so callers can still build (e.g. for unit tests of surrounding
// packages) without conditional compilation of their own.
package engine

import (
	"os"
	"time"

	"jjsgo/internal/sandbox/result"
	"jjsgo/internal/sandbox/spec"
	pkgerrors "jjsgo/pkg/errors"
)

type Paths struct {
	ZygotePath  string
	JobInitPath string
}

type ChildProcess struct {
	Pid int
}

type Sandbox struct{}

func Create(opts spec.Options, paths Paths) (*Sandbox, error) {
	return nil, pkgerrors.New(pkgerrors.SandboxSetupFailed).WithMessage("sandbox runtime requires linux")
}

func (sb *Sandbox) Spawn(job spec.JobQuery, stdio [3]*os.File) (*ChildProcess, error) {
	return nil, pkgerrors.New(pkgerrors.SandboxSetupFailed).WithMessage("sandbox runtime requires linux")
}

func (sb *Sandbox) Wait(child *ChildProcess, timeout time.Duration) (result.RunResult, error) {
	return result.RunResult{}, pkgerrors.New(pkgerrors.SandboxSetupFailed).WithMessage("sandbox runtime requires linux")
}

func (sb *Sandbox) Kill(child *ChildProcess) error {
	return pkgerrors.New(pkgerrors.SandboxSetupFailed).WithMessage("sandbox runtime requires linux")
}

func (sb *Sandbox) ResourceUsage() (cpuTimeNs int64, memoryPeakBytes int64, err error) {
	return 0, 0, pkgerrors.New(pkgerrors.SandboxSetupFailed).WithMessage("sandbox runtime requires linux")
}

func (sb *Sandbox) Destroy() error {
	return nil
}
