package controller

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"jjsgo/internal/common/storage"
	"jjsgo/internal/judge/model"
	pkgerrors "jjsgo/pkg/errors"
)

// toolchainAsset is a toolchain.yaml's on-disk shape. ExtraCompileFlags
// is a single shell-quoted string, exactly how the problem manifest
// carries `{extraFlags}` in the teacher's runner/default_runner.go; it
// is split with google/shlex and appended to every compile command's
// argv, rather than baked into the YAML as an already-split list.
type toolchainAsset struct {
	ID                string          `yaml:"id"`
	SourceFileName    string          `yaml:"source_file_name"`
	CompileCommands   []model.Command `yaml:"compile_commands"`
	ExecuteCommand    model.Command   `yaml:"execute_command"`
	CompileLimits      model.Limits   `yaml:"compile_limits"`
	ExecuteLimits      model.Limits   `yaml:"execute_limits"`
	ExtraCompileFlags  string         `yaml:"extra_compile_flags"`
	SeccompProfilePath string         `yaml:"seccomp_profile_path"`
}

// ToolchainLoaderConfig wires a ToolchainLoader to its object-storage
// bucket and a local unpack directory for toolchain root filesystems.
type ToolchainLoaderConfig struct {
	Storage    storage.ObjectStorage
	Bucket     string
	LocalDir   string
	CtxTimeout time.Duration
}

// ToolchainLoader fetches and unpacks a toolchain's root filesystem (the
// compiler/runtime image compile and execute commands run inside) the
// same way ProblemLoader does for problem packages, applying the extra
// compiler flags from the toolchain's own toolchain.yaml
// (extra_compile_flags) to every compile command before returning.
type ToolchainLoader struct {
	cfg ToolchainLoaderConfig
}

func NewToolchainLoader(cfg ToolchainLoaderConfig) *ToolchainLoader {
	if cfg.CtxTimeout == 0 {
		cfg.CtxTimeout = 30 * time.Second
	}
	return &ToolchainLoader{cfg: cfg}
}

// Load implements model.ToolchainLoader.
func (l *ToolchainLoader) Load(toolchainID string) (*model.Toolchain, error) {
	dir := filepath.Join(l.cfg.LocalDir, toolchainID)
	if _, err := os.Stat(filepath.Join(dir, "toolchain.yaml")); err != nil {
		if err := l.fetch(toolchainID, dir); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "toolchain.yaml"))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "read toolchain descriptor %q", toolchainID)
	}
	var asset toolchainAsset
	if err := yaml.Unmarshal(data, &asset); err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.TemplateBadSyntax, "parse toolchain descriptor %q", toolchainID)
	}

	extraFlags, err := shlex.Split(asset.ExtraCompileFlags)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.TemplateBadSyntax, "split extra compile flags for %q", toolchainID)
	}
	compileCmds := make([]model.Command, len(asset.CompileCommands))
	for i, cmd := range asset.CompileCommands {
		cmd.Argv = append(append([]string(nil), cmd.Argv...), extraFlags...)
		compileCmds[i] = cmd
	}

	return &model.Toolchain{
		ID:                 asset.ID,
		Root:               filepath.Join(dir, "root"),
		CompileCommands:    compileCmds,
		ExecuteCommand:     asset.ExecuteCommand,
		CompileLimits:      asset.CompileLimits,
		ExecuteLimits:      asset.ExecuteLimits,
		SourceFileName:     asset.SourceFileName,
		SeccompProfilePath: asset.SeccompProfilePath,
	}, nil
}

func (l *ToolchainLoader) fetch(toolchainID, dir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.CtxTimeout)
	defer cancel()

	reader, err := l.cfg.Storage.GetObject(ctx, l.cfg.Bucket, toolchainID+".tar.zst")
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.InternalServerError, "fetch toolchain package %q", toolchainID)
	}
	defer reader.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.JudgeSystemError)
	}
	if err := unpackTarZst(reader, dir); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.JudgeSystemError, "unpack toolchain package %q", toolchainID)
	}
	return nil
}
