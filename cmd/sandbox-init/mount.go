//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"algoarena/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

// enterRoot bind mounts the work directories under rootfs, mounts a private
// proc and chroots into it. An empty rootfs keeps the host tree.
func enterRoot(rootfs string, mounts []spec.MountSpec) error {
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make mounts private: %w", err)
	}
	for _, m := range mounts {
		if err := bindMount(rootfs, m); err != nil {
			return err
		}
	}
	if rootfs == "" {
		return nil
	}
	proc := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(proc, 0o755); err != nil {
		return fmt.Errorf("mkdir proc: %w", err)
	}
	if err := unix.Mount("proc", proc, "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount proc: %w", err)
	}
	if err := unix.Chroot(rootfs); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	return os.Chdir("/")
}

func bindMount(rootfs string, m spec.MountSpec) error {
	if m.Source == "" || m.Target == "" {
		return fmt.Errorf("bind mount needs source and target")
	}
	target := filepath.Join(rootfs, m.Target)
	if err := mountPoint(m.Source, target); err != nil {
		return err
	}
	if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind %s: %w", m.Target, err)
	}
	if !m.ReadOnly {
		return nil
	}
	if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
		return fmt.Errorf("remount %s readonly: %w", m.Target, err)
	}
	return nil
}

// mountPoint creates target with the same kind as source.
func mountPoint(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir mount parent: %w", err)
	}
	f, err := os.OpenFile(target, os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create mount file: %w", err)
	}
	return f.Close()
}
