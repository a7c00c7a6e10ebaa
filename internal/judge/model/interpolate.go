package model

import (
	"strings"

	pkgerrors "jjsgo/pkg/errors"
)

// Interpolate expands a command template string against dict, following
// the $(Key) micro-grammar grounded on original_source's
// judge/src/controller/task_loading.rs interpolate_string: a literal
// "$(" opens a key, ")" closes it, and the text between is looked up in
// dict verbatim (no escaping, no nesting). Anything outside a $(...)
// span is copied through unchanged.
func Interpolate(tpl string, dict map[string]string) (string, error) {
	var out strings.Builder
	rest := tpl
	for {
		start := strings.Index(rest, "$(")
		if start == -1 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:start])
		afterOpen := rest[start+2:]
		end := strings.IndexByte(afterOpen, ')')
		if end == -1 {
			return "", pkgerrors.Newf(pkgerrors.TemplateBadSyntax, "unterminated $( in template %q", tpl)
		}
		key := afterOpen[:end]
		if strings.Contains(key, "$(") {
			return "", pkgerrors.Newf(pkgerrors.TemplateBadSyntax, "nested $( inside key %q", tpl)
		}
		val, ok := dict[key]
		if !ok {
			return "", pkgerrors.Newf(pkgerrors.TemplateMissingKey, "unknown key %q in template %q", key, tpl)
		}
		out.WriteString(val)
		rest = afterOpen[end+1:]
	}
}

// InterpolateCommand expands every argv entry, env entry, and cwd of cmd
// against dict, then fills in any of toolchainEnvDefaults not already
// overridden by cmd.Env, mirroring task_loading.rs's interpolate_command
// env-merge order (explicit env wins, toolchain defaults fill gaps).
func InterpolateCommand(cmd Command, dict map[string]string, toolchainEnvDefaults map[string]string) (Command, error) {
	out := Command{Cwd: cmd.Cwd}
	for _, arg := range cmd.Argv {
		v, err := Interpolate(arg, dict)
		if err != nil {
			return Command{}, err
		}
		out.Argv = append(out.Argv, v)
	}
	used := make(map[string]bool, len(cmd.Env))
	for _, kv := range cmd.Env {
		name, val, _ := strings.Cut(kv, "=")
		name, err := Interpolate(name, dict)
		if err != nil {
			return Command{}, err
		}
		val, err = Interpolate(val, dict)
		if err != nil {
			return Command{}, err
		}
		out.Env = append(out.Env, name+"="+val)
		used[name] = true
	}
	cwd, err := Interpolate(cmd.Cwd, dict)
	if err != nil {
		return Command{}, err
	}
	out.Cwd = cwd
	for name, val := range toolchainEnvDefaults {
		if !used[name] {
			out.Env = append(out.Env, name+"="+val)
		}
	}
	return out, nil
}

// CommonInterpolationDict seeds the per-request dictionary with the keys
// every toolchain template may reference (task_loading.rs's
// get_common_interpolation_dict), before per-test or per-limit keys are
// added by the caller.
func CommonInterpolationDict(sourceFileName string) map[string]string {
	return map[string]string{
		"Invoker.Id":           "w",
		"Run.SourceFilePath":   "/jjs/" + sourceFileName,
		"Run.BinaryFilePath":   "/jjs/build",
	}
}
