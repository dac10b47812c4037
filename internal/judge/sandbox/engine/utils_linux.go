//go:build linux

package engine

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"algoarena/internal/judge/sandbox/spec"
)

func durationFromMs(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	return (state.UserTime() + state.SystemTime()).Milliseconds()
}

// cpuLimitExceeded catches SIGXCPU kills and runs that finished just past the limit.
func cpuLimitExceeded(state *os.ProcessState, limits spec.ResourceLimit) bool {
	if state == nil || limits.CPUTimeMs <= 0 {
		return false
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() && ws.Signal() == syscall.SIGXCPU {
		return true
	}
	return cpuTimeMs(state) > limits.CPUTimeMs
}

func fileSizeKB(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return (info.Size() + 1023) / 1024
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" || maxBytes <= 0 {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}

// resolveHostPath maps a container path back through the longest matching bind mount.
func resolveHostPath(path string, runSpec spec.RunSpec) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	longest, source := "", ""
	for _, mount := range runSpec.BindMounts {
		if mount.Target == "" || mount.Source == "" {
			continue
		}
		target := filepath.Clean(mount.Target)
		if clean != target && !strings.HasPrefix(clean, target+string(os.PathSeparator)) {
			continue
		}
		if len(target) > len(longest) {
			longest, source = target, mount.Source
		}
	}
	if source == "" {
		return path
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(clean, longest), string(os.PathSeparator))
	return filepath.Join(source, rel)
}
