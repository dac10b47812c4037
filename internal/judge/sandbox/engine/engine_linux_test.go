//go:build linux

package engine

import (
	"os/exec"
	"testing"
)

func TestExitCodeFromErr(t *testing.T) {
	cases := []struct {
		name   string
		script string
		want   int
	}{
		{name: "clean exit", script: "exit 0", want: 0},
		{name: "non-zero exit", script: "exit 3", want: 3},
		{name: "segfault", script: "kill -SEGV $$", want: 139},
		{name: "abort", script: "kill -ABRT $$", want: 134},
		{name: "sigkill", script: "kill -KILL $$", want: 137},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := exec.Command("/bin/sh", "-c", tc.script)
			err := cmd.Run()
			if got := exitCodeFromErr(err, cmd.ProcessState); got != tc.want {
				t.Fatalf("expected exit code %d, got %d", tc.want, got)
			}
		})
	}
}

func TestExitCodeFromErrWithoutState(t *testing.T) {
	if got := exitCodeFromErr(nil, nil); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := exitCodeFromErr(exec.ErrNotFound, nil); got != -1 {
		t.Fatalf("expected -1, got %d", got)
	}
}
