package controller

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"jjsgo/internal/judge/model"
	sandboxspec "jjsgo/internal/sandbox/spec"
	pkgerrors "jjsgo/pkg/errors"
)

// lowerJudgeRequest resolves req's problem and toolchain, interpolates
// every command template against the per-request dictionary, and
// materializes a fresh scratch copy of the toolchain root holding the
// submitted source — grounded on controller.rs's lower_judge_request /
// task_loading.rs's get_common_interpolation_dict. Compile and execute
// limits are taken from the toolchain alone: the problem manifest has no
// limits of its own to merge, and per-test limits are overlaid on the
// execute limits later, by the Worker's runTest.
func (c *Controller) lowerJudgeRequest(req *model.JudgeRequest) (*model.LoweredJudgeRequest, error) {
	manifest, problemDir, err := c.problemLoader.Load(req.ProblemID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "load problem %q", req.ProblemID)
	}
	toolchain, err := c.toolchainLoader.Load(req.ToolchainID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "load toolchain %q", req.ToolchainID)
	}

	scratchRoot, err := os.MkdirTemp(c.scratchDir, "tc-"+req.RequestID.String()+"-")
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	if err := copyTree(toolchain.Root, scratchRoot); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.JudgeSystemError, "materialize toolchain scratch root")
	}

	sourceDir := filepath.Join(scratchRoot, "jjs")
	if err := os.MkdirAll(sourceDir, 0755); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	sourcePath := filepath.Join(sourceDir, toolchain.SourceFileName)
	if err := os.WriteFile(sourcePath, req.RunSource, 0644); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}

	outDir, err := os.MkdirTemp(c.scratchDir, "out-"+req.RequestID.String()+"-")
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}

	dict := model.CommonInterpolationDict(toolchain.SourceFileName)
	dict["Invoker.Id"] = c.invokerID
	dict["Run.Meta.JudgeTimeUtc"] = time.Now().UTC().Format(time.RFC3339)
	dict["Run.Meta.InvokeRequestId"] = req.RequestID.String()

	compileCmds := make([]sandboxspec.Command, 0, len(toolchain.CompileCommands))
	for _, tmpl := range toolchain.CompileCommands {
		cmd, err := model.InterpolateCommand(tmpl, dict, nil)
		if err != nil {
			return nil, err
		}
		compileCmds = append(compileCmds, sandboxspec.Command(cmd))
	}
	executeCmd, err := model.InterpolateCommand(toolchain.ExecuteCommand, dict, nil)
	if err != nil {
		return nil, err
	}

	return &model.LoweredJudgeRequest{
		RequestID:          req.RequestID,
		CompileCommands:    compileCmds,
		ExecuteCommand:     sandboxspec.Command(executeCmd),
		CompileLimits:      toolchain.CompileLimits.ToSandboxLimit(),
		ExecuteLimits:      toolchain.ExecuteLimits.ToSandboxLimit(),
		Problem:            manifest,
		ProblemDir:         problemDir,
		SourceFileName:     toolchain.SourceFileName,
		ToolchainRoot:      scratchRoot,
		SourcePath:         sourcePath,
		OutDir:             outDir,
		SeccompProfilePath: toolchain.SeccompProfilePath,
	}, nil
}

// copyTree recursively copies src onto dst, which must already exist.
// Toolchain roots are small (a handful of compiler/runtime files), so a
// plain walk-and-copy is adequate; no need for the rsync-style dedup a
// larger asset store would want.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm()|0700)
		}
		return copyFileMode(path, target, d)
	})
}

func copyFileMode(src, dst string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
