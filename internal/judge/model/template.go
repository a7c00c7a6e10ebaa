package model

import (
	"strings"

	pkgerrors "jjsgo/pkg/errors"
)

// TemplateDict is the interpolation dictionary built by the controller for
// one lowering pass (spec §4.3): Invoker.Id, Run.SourceFilePath,
// Run.BinaryFilePath, Run.Meta.JudgeTimeUtc, Run.Meta.InvokeRequestId, plus
// whatever else a deployment wants to expose to templates.
type TemplateDict map[string]string

// Interpolate expands every "$(Key)" occurrence in s against dict. It is a
// small state machine over two alternating markers ("$(" and ")"); per
// spec §9 it must reject nested or unterminated patterns rather than
// silently accept them, and unknown keys are an explicit error rather than
// left-as-is or blanked out.
func Interpolate(s string, dict TemplateDict) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "$(")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i
		out.WriteString(s[i:start])

		keyStart := start + 2
		rest := s[keyStart:]
		if j := strings.IndexAny(rest, "$)"); j < 0 {
			return "", pkgerrors.Newf(pkgerrors.TemplateBadSyntax, "unterminated pattern at byte %d", start)
		} else if rest[j] == '$' {
			return "", pkgerrors.Newf(pkgerrors.TemplateBadSyntax, "nested '$(' at byte %d", keyStart+j)
		} else {
			key := rest[:j]
			val, ok := dict[key]
			if !ok {
				return "", pkgerrors.Newf(pkgerrors.TemplateMissingKey, "unknown template key %q", key)
			}
			out.WriteString(val)
			i = keyStart + j + 1
		}
	}
	return out.String(), nil
}

// InterpolateCommand expands every argv element, every env NAME=VALUE
// string's name and value, and cwd against dict, per spec §4.3 ("used in
// every argv element, every env value and name, and in cwd").
func InterpolateCommand(cmd Command, dict TemplateDict) (Command, error) {
	out := Command{Argv: make([]string, len(cmd.Argv)), Env: make([]string, len(cmd.Env))}
	for i, a := range cmd.Argv {
		expanded, err := Interpolate(a, dict)
		if err != nil {
			return Command{}, err
		}
		out.Argv[i] = expanded
	}
	for i, e := range cmd.Env {
		name, value, _ := strings.Cut(e, "=")
		expandedName, err := Interpolate(name, dict)
		if err != nil {
			return Command{}, err
		}
		expandedValue, err := Interpolate(value, dict)
		if err != nil {
			return Command{}, err
		}
		out.Env[i] = expandedName + "=" + expandedValue
	}
	cwd, err := Interpolate(cmd.Cwd, dict)
	if err != nil {
		return Command{}, err
	}
	out.Cwd = cwd
	return out, nil
}
