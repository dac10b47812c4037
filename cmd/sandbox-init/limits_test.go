//go:build linux

package main

import (
	"testing"

	"algoarena/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

func TestRlimitsFor(t *testing.T) {
	limits := spec.ResourceLimit{CPUTimeMs: 1500, OutputMB: 16, StackMB: 64, PIDs: 1, MemoryMB: 256}

	got := rlimitsFor(limits, false)
	want := map[int]uint64{
		unix.RLIMIT_CPU:   2,
		unix.RLIMIT_FSIZE: 16 * mib,
		unix.RLIMIT_STACK: 64 * mib,
		unix.RLIMIT_NPROC: 1,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d limits, want %d", len(got), len(want))
	}
	for _, r := range got {
		if want[r.resource] != r.value {
			t.Fatalf("%s = %d, want %d", r.name, r.value, want[r.resource])
		}
	}

	withAS := rlimitsFor(limits, true)
	last := withAS[len(withAS)-1]
	if last.resource != unix.RLIMIT_AS || last.value != 512*mib {
		t.Fatalf("address limit = %+v", last)
	}
	if len(rlimitsFor(spec.ResourceLimit{}, true)) != 0 {
		t.Fatalf("zero limits should set nothing")
	}
}
