//go:build linux

package main

import (
	"fmt"

	"algoarena/internal/judge/sandbox/security"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

func loadSeccomp(path string) error {
	policy, err := security.LoadSeccompPolicy(path)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(scmpAction(policy.DefaultAction))
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range policy.Syscalls {
		action := scmpAction(rule.Action)
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Profiles are shared across kernels; unknown names are skipped.
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func scmpAction(a security.SeccompAction) seccomp.ScmpAction {
	switch a {
	case security.SeccompAllow:
		return seccomp.ActAllow
	case security.SeccompErrno:
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM))
	default:
		return seccomp.ActKillProcess
	}
}
