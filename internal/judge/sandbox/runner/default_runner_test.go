package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"algoarena/internal/judge/sandbox/profile"
	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/spec"
	appErr "algoarena/pkg/errors"
)

type fakeEngine struct {
	specs []spec.RunSpec
	res   result.RunResult
	err   error
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.specs = append(f.specs, runSpec)
	return f.res, f.err
}

func (f *fakeEngine) Probe(ctx context.Context) error { return nil }

var cppSpec = profile.LanguageSpec{
	ID:             "cpp",
	SourceFile:     "main.cpp",
	BinaryFile:     "main",
	CompileEnabled: true,
	CompileCmdTpl:  "g++ -O2 -std=c++17 -o {bin} {src}",
	RunCmdTpl:      "{bin}",
	TimeMultiplier: 1,
}

func TestBuildCommand(t *testing.T) {
	cmd, err := buildCommand(cppSpec.CompileCmdTpl, cppSpec)
	if err != nil {
		t.Fatalf("build command failed: %v", err)
	}
	want := []string{"g++", "-O2", "-std=c++17", "-o", "/work/main", "/work/main.cpp"}
	if len(cmd) != len(want) {
		t.Fatalf("unexpected command %v", cmd)
	}
	for i := range want {
		if cmd[i] != want[i] {
			t.Fatalf("arg %d: expected %s, got %s", i, want[i], cmd[i])
		}
	}
	if _, err := buildCommand("   ", cppSpec); err == nil {
		t.Fatalf("expected error for empty template")
	}
}

func TestClassifyRun(t *testing.T) {
	limits := spec.ResourceLimit{MemoryMB: 64, OutputMB: 1}
	cases := []struct {
		name string
		res  result.RunResult
		want result.Outcome
	}{
		{name: "ok", res: result.RunResult{}, want: result.OutcomeOK},
		{name: "killed by wall timer", res: result.RunResult{ExitCode: 137, TimedOut: true, OomKilled: true}, want: result.OutcomeTimeLimit},
		{name: "oom kill", res: result.RunResult{ExitCode: 137, OomKilled: true}, want: result.OutcomeMemoryLimit},
		{name: "segfault", res: result.RunResult{ExitCode: 139}, want: result.OutcomeRuntimeError},
		{name: "abort", res: result.RunResult{ExitCode: 134}, want: result.OutcomeRuntimeError},
		{name: "segfault above memory limit", res: result.RunResult{ExitCode: 139, MemoryKB: 64*1024 + 1}, want: result.OutcomeMemoryLimit},
		{name: "peak above limit", res: result.RunResult{MemoryKB: 64*1024 + 1}, want: result.OutcomeMemoryLimit},
		{name: "output limit", res: result.RunResult{OutputKB: 2048}, want: result.OutcomeOutputLimit},
		{name: "non-zero exit", res: result.RunResult{ExitCode: 1}, want: result.OutcomeRuntimeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyRun(tc.res, limits); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestApplyLimitsScalesByLanguage(t *testing.T) {
	lang := profile.LanguageSpec{TimeMultiplier: 2, MemoryMultiplier: 1.5}
	got := applyLimits(spec.ResourceLimit{CPUTimeMs: 1000, MemoryMB: 0}, spec.ResourceLimit{CPUTimeMs: 500, WallTimeMs: 3000, MemoryMB: 256}, lang)
	if got.CPUTimeMs != 2000 || got.WallTimeMs != 6000 || got.MemoryMB != 384 {
		t.Fatalf("unexpected limits %+v", got)
	}
}

func TestCompileFailureKeepsLog(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{ExitCode: 1, Stderr: "main.cpp:1: error"}}
	r := NewRunner(eng, nil)
	dir := t.TempDir()

	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID: "s1",
		Language:     cppSpec,
		Profile:      profile.TaskProfile{LanguageID: "cpp", TaskType: profile.TaskTypeCompile},
		WorkDir:      dir,
		Source:       "int main(){",
	})
	if err != nil {
		t.Fatalf("compile returned error: %v", err)
	}
	if res.OK || res.Log != "main.cpp:1: error" {
		t.Fatalf("unexpected compile result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "main.cpp")); err != nil {
		t.Fatalf("expected source file written: %v", err)
	}
	if eng.specs[0].Profile != "cpp-compile" {
		t.Fatalf("unexpected profile %s", eng.specs[0].Profile)
	}
}

func TestCompileTimeoutIsNotOK(t *testing.T) {
	eng := &fakeEngine{res: result.RunResult{ExitCode: 137, TimedOut: true}}
	r := NewRunner(eng, nil)

	res, err := r.Compile(context.Background(), CompileRequest{
		SubmissionID: "s1",
		Language:     cppSpec,
		Profile:      profile.TaskProfile{LanguageID: "cpp", TaskType: profile.TaskTypeCompile},
		WorkDir:      t.TempDir(),
		Source:       "int main(){}",
	})
	if err != nil {
		t.Fatalf("compile returned error: %v", err)
	}
	if res.OK || !strings.Contains(res.Log, "compilation time limit exceeded") {
		t.Fatalf("unexpected compile result %+v", res)
	}
}

func TestCompileSkippedForInterpretedLanguage(t *testing.T) {
	eng := &fakeEngine{}
	r := NewRunner(eng, nil)
	lang := profile.LanguageSpec{ID: "python", SourceFile: "main.py", RunCmdTpl: "python3 {src}"}

	res, err := r.Compile(context.Background(), CompileRequest{SubmissionID: "s1", Language: lang, WorkDir: t.TempDir(), Source: "print(1)"})
	if err != nil || !res.OK {
		t.Fatalf("expected ok, got %+v %v", res, err)
	}
	if len(eng.specs) != 0 {
		t.Fatalf("engine must not run for interpreted languages")
	}
}

func TestRunMapsEngineFailureToSystemError(t *testing.T) {
	eng := &fakeEngine{err: errors.New("helper missing")}
	r := NewRunner(eng, nil)

	res, err := r.Run(context.Background(), RunRequest{
		SubmissionID: "s1",
		TestID:       "1",
		Language:     cppSpec,
		Profile:      profile.TaskProfile{LanguageID: "cpp", TaskType: profile.TaskTypeRun},
		WorkDir:      t.TempDir(),
		InputPath:    "/tmp/in.txt",
	})
	if appErr.GetCode(err) != appErr.JudgeSystemError {
		t.Fatalf("expected judge system error, got %v", err)
	}
	if res.Outcome != result.OutcomeSystemError {
		t.Fatalf("expected system error outcome, got %s", res.Outcome)
	}
	mounts := eng.specs[0].BindMounts
	if len(mounts) != 2 || !mounts[1].ReadOnly || mounts[1].Target != "/work/input.txt" {
		t.Fatalf("unexpected mounts %+v", mounts)
	}
}
