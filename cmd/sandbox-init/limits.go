//go:build linux

package main

import (
	"fmt"
	"os"

	"algoarena/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

const mib = 1 << 20

type rlimit struct {
	resource int
	name     string
	value    uint64
}

// rlimitsFor converts task limits into hard rlimits. CPU time rounds up to
// whole seconds; the engine's wall clock watcher catches the remainder.
func rlimitsFor(l spec.ResourceLimit, addressLimit bool) []rlimit {
	var out []rlimit
	if l.CPUTimeMs > 0 {
		out = append(out, rlimit{unix.RLIMIT_CPU, "cpu", uint64((l.CPUTimeMs + 999) / 1000)})
	}
	if l.OutputMB > 0 {
		out = append(out, rlimit{unix.RLIMIT_FSIZE, "fsize", uint64(l.OutputMB) * mib})
	}
	if l.StackMB > 0 {
		out = append(out, rlimit{unix.RLIMIT_STACK, "stack", uint64(l.StackMB) * mib})
	}
	if l.PIDs > 0 {
		out = append(out, rlimit{unix.RLIMIT_NPROC, "nproc", uint64(l.PIDs)})
	}
	if addressLimit && l.MemoryMB > 0 {
		// Runtimes reserve more address space than they touch; leave headroom.
		out = append(out, rlimit{unix.RLIMIT_AS, "as", uint64(l.MemoryMB) * 2 * mib})
	}
	return out
}

func setLimits(l spec.ResourceLimit, addressLimit bool) error {
	for _, r := range rlimitsFor(l, addressLimit) {
		if err := unix.Setrlimit(r.resource, &unix.Rlimit{Cur: r.value, Max: r.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", r.name, err)
		}
	}
	return nil
}

// redirectStdio points fds 0-2 at the run's files. Missing paths map to /dev/null.
func redirectStdio(run spec.RunSpec) error {
	streams := []struct {
		path string
		fd   int
		flag int
	}{
		{run.StdinPath, 0, os.O_RDONLY},
		{run.StdoutPath, 1, os.O_CREATE | os.O_WRONLY | os.O_TRUNC},
		{run.StderrPath, 2, os.O_CREATE | os.O_WRONLY | os.O_TRUNC},
	}
	for _, s := range streams {
		path := s.path
		if path == "" {
			path = os.DevNull
		}
		f, err := os.OpenFile(path, s.flag, 0o644)
		if err != nil {
			return fmt.Errorf("open fd %d: %w", s.fd, err)
		}
		err = unix.Dup2(int(f.Fd()), s.fd)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("dup fd %d: %w", s.fd, err)
		}
	}
	return nil
}
