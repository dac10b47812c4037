//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"algoarena/internal/judge/sandbox/spec"
)

const cpuPeriodUs = 100000

func createRunCgroup(root, submissionID, testID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, fmt.Errorf("cgroup root is required")
	}
	cgroupPath := filepath.Join(root, submissionID, fmt.Sprintf("%s-%d", testID, time.Now().UnixNano()))
	if err := os.MkdirAll(cgroupPath, 0750); err != nil {
		return "", func() {}, fmt.Errorf("create cgroup path: %w", err)
	}
	return cgroupPath, func() { _ = os.Remove(cgroupPath) }, nil
}

func applyCgroupLimits(cgroupPath string, limits spec.ResourceLimit, cpuQuotaPercent int) error {
	pids := "max"
	if limits.PIDs > 0 {
		pids = strconv.FormatInt(limits.PIDs, 10)
	}
	values := [][2]string{
		{"pids.max", pids},
		{"cpu.max", fmt.Sprintf("%d %d", cpuPeriodUs*cpuQuotaPercent/100, cpuPeriodUs)},
	}
	if limits.MemoryMB > 0 {
		bytes := strconv.FormatInt(limits.MemoryMB*1024*1024, 10)
		values = append(values, [2]string{"memory.max", bytes}, [2]string{"memory.swap.max", "0"})
	}
	for _, kv := range values {
		if err := writeCgroupValue(cgroupPath, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "oom_kill" {
			n, _ := strconv.ParseInt(fields[1], 10, 64)
			return n > 0
		}
	}
	return false
}

// memoryPeakKB prefers the cgroup high-water mark and falls back to rusage.
func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if v, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && v > 0 {
			return v / 1024
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func writeCgroupValue(cgroupPath, name, value string) error {
	if err := os.WriteFile(filepath.Join(cgroupPath, name), []byte(value), 0640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
