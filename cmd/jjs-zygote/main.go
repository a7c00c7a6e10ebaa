// Command jjs-zygote is the long-lived PID-1-in-jail process described in
// spec §4.1. It is started by internal/sandbox/engine with the namespace
// and UID-mapping flags already applied by os/exec (see SPEC_FULL.md §12),
// reads its configuration from environment variables set by the parent,
// and then blocks in zygote.Run serving Spawn/Poll/Exit requests until
// told to exit or its control socket closes.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"jjsgo/internal/sandbox/spec"
	"jjsgo/internal/sandbox/zygote"
)

const (
	envIsolationRoot = "JJS_ISOLATION_ROOT"
	envExposedPaths  = "JJS_EXPOSED_PATHS" // JSON-encoded []spec.ExposedPath
	envControlFD     = "JJS_CONTROL_FD"
	envCgroupFDs     = "JJS_CGROUP_FDS" // comma-separated fd numbers
	envCPUUsageFD    = "JJS_CPU_USAGE_FD"
	envWatchdogFD    = "JJS_WATCHDOG_FD"
	envCPULimitMs    = "JJS_CPU_LIMIT_MS"
	envRealLimitMs   = "JJS_REAL_LIMIT_MS"
	envJobInitPath   = "JJS_JOBINIT_PATH"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jjs-zygote: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := zygote.Config{
		IsolationRoot: os.Getenv(envIsolationRoot),
		JobInitPath:   os.Getenv(envJobInitPath),
	}
	if cfg.IsolationRoot == "" {
		return fmt.Errorf("%s is required", envIsolationRoot)
	}
	if cfg.JobInitPath == "" {
		return fmt.Errorf("%s is required", envJobInitPath)
	}

	if raw := os.Getenv(envExposedPaths); raw != "" {
		var paths []spec.ExposedPath
		if err := json.Unmarshal([]byte(raw), &paths); err != nil {
			return fmt.Errorf("parse %s: %w", envExposedPaths, err)
		}
		cfg.ExposedPaths = paths
	}

	var err error
	if cfg.ControlFD, err = intEnv(envControlFD, true); err != nil {
		return err
	}
	if cfg.CPUUsageFD, err = intEnv(envCPUUsageFD, false); err != nil {
		return err
	}
	if cfg.WatchdogFD, err = intEnv(envWatchdogFD, false); err != nil {
		return err
	}
	if cfg.CPULimitMs, err = int64Env(envCPULimitMs); err != nil {
		return err
	}
	if cfg.RealLimitMs, err = int64Env(envRealLimitMs); err != nil {
		return err
	}
	if raw := os.Getenv(envCgroupFDs); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return fmt.Errorf("parse %s: %w", envCgroupFDs, err)
			}
			cfg.CgroupJoinFDs = append(cfg.CgroupJoinFDs, n)
		}
	}

	return zygote.Run(cfg)
}

func intEnv(name string, required bool) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}

func int64Env(name string) (int64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return n, nil
}
