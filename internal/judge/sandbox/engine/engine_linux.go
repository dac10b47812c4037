//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/security"
	"algoarena/internal/judge/sandbox/spec"
	"algoarena/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultStdoutStderrMaxBytes int64 = 8 * 1024 * 1024
	defaultCPUQuotaPercent            = 100
	defaultHelperPath                 = "sandbox-init"
)

type linuxEngine struct {
	cfg      Config
	resolver ProfileResolver
}

// NewEngine creates a Linux sandbox engine backed by the sandbox-init helper.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.CPUQuotaPercent <= 0 {
		cfg.CPUQuotaPercent = defaultCPUQuotaPercent
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = defaultHelperPath
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	return &linuxEngine{
		cfg:      cfg,
		resolver: resolver,
	}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	iso, err := e.resolver.Resolve(runSpec.Profile)
	if err != nil {
		return result.RunResult{}, fmt.Errorf("resolve profile: %w", err)
	}
	if e.cfg.SeccompDir != "" && iso.SeccompProfile != "" && !filepath.IsAbs(iso.SeccompProfile) {
		iso.SeccompProfile = filepath.Join(e.cfg.SeccompDir, iso.SeccompProfile)
	}

	cgroupPath, release, err := e.prepareCgroup(runSpec)
	if err != nil {
		return result.RunResult{}, err
	}
	defer release()

	stdin, err := encodeInitRequest(spec.InitRequest{
		Run:            runSpec,
		RootFS:         iso.RootFS,
		SeccompProfile: iso.SeccompProfile,
		Seccomp:        e.cfg.EnableSeccomp,
		Namespaces:     e.cfg.EnableNamespaces,
		AddressLimit:   cgroupPath == "",
	})
	if err != nil {
		return result.RunResult{}, fmt.Errorf("encode init request: %w", err)
	}
	defer stdin.Close()

	var helperStderr bytes.Buffer
	cmd := exec.Command(e.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(iso, e.cfg.EnableNamespaces)
	cmd.Stdin = stdin
	cmd.Stdout = io.Discard
	cmd.Stderr = &helperStderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, fmt.Errorf("start helper: %w", err)
	}
	if cgroupPath != "" {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	timedOut := e.watch(ctx, cmd.Process.Pid, runSpec.Limits.WallTimeMs)
	waitErr := cmd.Wait()
	timedOut.stop()
	if cgroupPath != "" {
		// Forked children can outlive the helper; sweep them before the cgroup is removed.
		if err := killCgroup(cgroupPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug(ctx, "sweep cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	wallTimeMs := time.Since(start).Milliseconds()

	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Debug(ctx, "sandbox helper stderr",
			zap.String("test_id", runSpec.TestID),
			zap.String("stderr", helperStderr.String()),
		)
	}

	stdoutPath := resolveHostPath(runSpec.StdoutPath, runSpec)
	stderrPath := resolveHostPath(runSpec.StderrPath, runSpec)
	res := result.RunResult{
		ExitCode:   exitCodeFromErr(waitErr, cmd.ProcessState),
		TimeMs:     cpuTimeMs(cmd.ProcessState),
		WallTimeMs: wallTimeMs,
		MemoryKB:   memoryPeakKB(cgroupPath, cmd.ProcessState),
		OutputKB:   fileSizeKB(stdoutPath),
		Stdout:     readLimitedFile(stdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:     readLimitedFile(stderrPath, e.cfg.StdoutStderrMaxBytes),
		OomKilled:  wasOomKilled(cgroupPath),
		TimedOut:   timedOut.fired() || cpuLimitExceeded(cmd.ProcessState, runSpec.Limits),
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("sandbox run interrupted: %w", ctxErr)
	}
	return res, nil
}

// Probe checks the helper binary and the configured isolation roots.
func (e *linuxEngine) Probe(context.Context) error {
	if _, err := exec.LookPath(e.cfg.HelperPath); err != nil {
		return fmt.Errorf("sandbox helper: %w", err)
	}
	dirs := map[string]bool{
		e.cfg.CgroupRoot: e.cfg.EnableCgroup,
		e.cfg.SeccompDir: e.cfg.EnableSeccomp && e.cfg.SeccompDir != "",
	}
	for dir, needed := range dirs {
		if !needed {
			continue
		}
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

func (e *linuxEngine) prepareCgroup(runSpec spec.RunSpec) (string, func(), error) {
	if !e.cfg.EnableCgroup {
		return "", func() {}, nil
	}
	cgroupPath, cleanup, err := createRunCgroup(e.cfg.CgroupRoot, runSpec.SubmissionID, runSpec.TestID)
	if err != nil {
		return "", nil, fmt.Errorf("create cgroup: %w", err)
	}
	if err := applyCgroupLimits(cgroupPath, runSpec.Limits, e.cfg.CPUQuotaPercent); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("apply cgroup limits: %w", err)
	}
	return cgroupPath, cleanup, nil
}

// wallWatch kills the process group once the wall limit passes or ctx ends.
type wallWatch struct {
	done    chan struct{}
	expired atomic.Bool
}

func (w *wallWatch) stop() { close(w.done) }

func (w *wallWatch) fired() bool { return w.expired.Load() }

func (e *linuxEngine) watch(ctx context.Context, pid int, wallTimeMs int64) *wallWatch {
	w := &wallWatch{done: make(chan struct{})}
	go func() {
		var deadline <-chan time.Time
		if limit := durationFromMs(wallTimeMs); limit > 0 {
			timer := time.NewTimer(limit)
			defer timer.Stop()
			deadline = timer.C
		}
		select {
		case <-ctx.Done():
			killProcessGroup(pid)
		case <-deadline:
			w.expired.Store(true)
			killProcessGroup(pid)
		case <-w.done:
		}
	}()
	return w
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// exitCodeFromErr reports a signalled exit as 128+signo, the way shells do.
func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func validateRunSpec(runSpec spec.RunSpec) error {
	switch {
	case runSpec.SubmissionID == "":
		return fmt.Errorf("submission id is required")
	case runSpec.TestID == "":
		return fmt.Errorf("test id is required")
	case runSpec.WorkDir == "":
		return fmt.Errorf("work dir is required")
	case len(runSpec.Cmd) == 0:
		return fmt.Errorf("command is required")
	case runSpec.Profile == "":
		return fmt.Errorf("profile is required")
	}
	return nil
}

func encodeInitRequest(req spec.InitRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func buildSysProcAttr(iso security.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	flags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC | syscall.CLONE_NEWUSER)
	if iso.DisableNetwork {
		flags |= syscall.CLONE_NEWNET
	}
	attr.Cloneflags = flags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	return attr
}
