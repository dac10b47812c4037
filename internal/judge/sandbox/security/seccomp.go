package security

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SeccompAction names what the filter does with a matched syscall.
type SeccompAction string

const (
	SeccompAllow SeccompAction = "allow"
	SeccompKill  SeccompAction = "kill"
	SeccompErrno SeccompAction = "errno"
)

// SeccompRule applies one action to a list of syscalls.
type SeccompRule struct {
	Names  []string      `json:"names"`
	Action SeccompAction `json:"action"`
}

// SeccompPolicy is the on-disk form of a seccomp profile.
// Docker style action names such as SCMP_ACT_ALLOW are accepted too.
type SeccompPolicy struct {
	DefaultAction SeccompAction `json:"defaultAction"`
	Syscalls      []SeccompRule `json:"syscalls"`
}

// LoadSeccompPolicy reads and normalizes the profile at path.
func LoadSeccompPolicy(path string) (SeccompPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SeccompPolicy{}, fmt.Errorf("read seccomp profile: %w", err)
	}
	return ParseSeccompPolicy(data)
}

// ParseSeccompPolicy decodes a profile and rejects unknown actions.
func ParseSeccompPolicy(data []byte) (SeccompPolicy, error) {
	var p SeccompPolicy
	if err := json.Unmarshal(data, &p); err != nil {
		return SeccompPolicy{}, fmt.Errorf("parse seccomp profile: %w", err)
	}
	var err error
	if p.DefaultAction, err = normalizeAction(p.DefaultAction); err != nil {
		return SeccompPolicy{}, err
	}
	for i := range p.Syscalls {
		if p.Syscalls[i].Action, err = normalizeAction(p.Syscalls[i].Action); err != nil {
			return SeccompPolicy{}, err
		}
	}
	return p, nil
}

func normalizeAction(a SeccompAction) (SeccompAction, error) {
	raw := strings.ToLower(strings.TrimPrefix(strings.ToUpper(string(a)), "SCMP_ACT_"))
	switch raw {
	case "allow":
		return SeccompAllow, nil
	case "kill", "kill_process", "":
		return SeccompKill, nil
	case "errno":
		return SeccompErrno, nil
	}
	return "", fmt.Errorf("unsupported seccomp action: %s", a)
}
