//go:build linux

// Command sandbox-init is started by the judge engine inside fresh namespaces.
// It reads a spec.InitRequest from stdin, applies mounts, rlimits, stdio
// redirection and seccomp, then execs the task command in its own place.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"algoarena/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "sandbox-init:", err)
		os.Exit(1)
	}
}

func run() error {
	req, err := spec.DecodeInitRequest(os.Stdin)
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if req.Namespaces {
		if err := enterRoot(req.RootFS, req.Run.BindMounts); err != nil {
			return err
		}
	}
	if err := os.Chdir(req.Run.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := setLimits(req.Run.Limits, req.AddressLimit); err != nil {
		return err
	}
	if err := redirectStdio(req.Run); err != nil {
		return err
	}
	if req.Seccomp && req.SeccompProfile != "" {
		if err := loadSeccomp(req.SeccompProfile); err != nil {
			return err
		}
	}
	return execTask(req.Run)
}

func execTask(run spec.RunSpec) error {
	env := run.Env
	if len(env) == 0 {
		env = []string{defaultPath}
	}
	// LookPath consults PATH from our own environment, so swap it first.
	os.Clearenv()
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			_ = os.Setenv(k, v)
		}
	}
	bin, err := exec.LookPath(run.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(bin, run.Cmd, env)
}
