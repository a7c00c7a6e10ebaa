package model

import (
	"testing"

	pkgerrors "jjsgo/pkg/errors"
)

func TestInterpolate(t *testing.T) {
	t.Parallel()
	dict := map[string]string{
		"Invoker.Id":         "w",
		"Run.SourceFilePath": "/jjs/sol.cpp",
	}
	tests := []struct {
		name    string
		tpl     string
		want    string
		wantErr pkgerrors.ErrorCode
	}{
		{name: "no patterns", tpl: "g++ -O2", want: "g++ -O2"},
		{name: "single key", tpl: "$(Run.SourceFilePath)", want: "/jjs/sol.cpp"},
		{name: "key surrounded by text", tpl: "compile $(Run.SourceFilePath) now", want: "compile /jjs/sol.cpp now"},
		{name: "two keys", tpl: "$(Invoker.Id)-$(Run.SourceFilePath)", want: "w-/jjs/sol.cpp"},
		{name: "unterminated", tpl: "$(Invoker.Id", wantErr: pkgerrors.TemplateBadSyntax},
		{name: "nested", tpl: "$(Invoker.$(Id))", wantErr: pkgerrors.TemplateBadSyntax},
		{name: "unknown key", tpl: "$(Nope)", wantErr: pkgerrors.TemplateMissingKey},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Interpolate(tc.tpl, dict)
			if tc.wantErr != 0 {
				if err == nil {
					t.Fatalf("Interpolate(%q) = nil error, want code %v", tc.tpl, tc.wantErr)
				}
				if code := pkgerrors.GetCode(err); code != tc.wantErr {
					t.Fatalf("Interpolate(%q) error code = %v, want %v", tc.tpl, code, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Interpolate(%q) unexpected error: %v", tc.tpl, err)
			}
			if got != tc.want {
				t.Fatalf("Interpolate(%q) = %q, want %q", tc.tpl, got, tc.want)
			}
		})
	}
}

func TestInterpolateCommand(t *testing.T) {
	t.Parallel()
	dict := map[string]string{"Run.SourceFilePath": "/jjs/sol.cpp"}
	cmd := Command{
		Argv: []string{"g++", "$(Run.SourceFilePath)", "-o", "build"},
		Env:  []string{"PATH=/usr/bin"},
		Cwd:  "/jjs",
	}
	defaults := map[string]string{"PATH": "/should/not/win", "LANG": "C"}

	out, err := InterpolateCommand(cmd, dict, defaults)
	if err != nil {
		t.Fatalf("InterpolateCommand: unexpected error: %v", err)
	}
	wantArgv := []string{"g++", "/jjs/sol.cpp", "-o", "build"}
	if len(out.Argv) != len(wantArgv) {
		t.Fatalf("Argv length = %d, want %d", len(out.Argv), len(wantArgv))
	}
	for i, a := range wantArgv {
		if out.Argv[i] != a {
			t.Fatalf("Argv[%d] = %q, want %q", i, out.Argv[i], a)
		}
	}
	if out.Cwd != "/jjs" {
		t.Fatalf("Cwd = %q, want /jjs", out.Cwd)
	}

	envSet := map[string]bool{}
	for _, kv := range out.Env {
		envSet[kv] = true
	}
	if !envSet["PATH=/usr/bin"] {
		t.Fatalf("explicit env PATH=/usr/bin should win over toolchain default, got %v", out.Env)
	}
	if !envSet["LANG=C"] {
		t.Fatalf("toolchain default LANG=C should fill the gap, got %v", out.Env)
	}
	if envSet["PATH=/should/not/win"] {
		t.Fatalf("toolchain default PATH must not override explicit env, got %v", out.Env)
	}
}

func TestCommonInterpolationDict(t *testing.T) {
	t.Parallel()
	dict := CommonInterpolationDict("sol.cpp")
	if dict["Invoker.Id"] != "w" {
		t.Fatalf("Invoker.Id = %q, want w", dict["Invoker.Id"])
	}
	if dict["Run.SourceFilePath"] != "/jjs/sol.cpp" {
		t.Fatalf("Run.SourceFilePath = %q, want /jjs/sol.cpp", dict["Run.SourceFilePath"])
	}
	if dict["Run.BinaryFilePath"] != "/jjs/build" {
		t.Fatalf("Run.BinaryFilePath = %q, want /jjs/build", dict["Run.BinaryFilePath"])
	}
}
