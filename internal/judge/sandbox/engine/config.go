package engine

import "algoarena/internal/judge/sandbox/security"

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	CgroupRoot string `yaml:"cgroupRoot"`
	SeccompDir string `yaml:"seccompDir"`
	// HelperPath points at the sandbox-init binary that applies isolation before exec.
	HelperPath string `yaml:"helperPath"`
	// StdoutStderrMaxBytes caps how much of each stream is read back for comparison.
	StdoutStderrMaxBytes int64 `yaml:"stdoutStderrMaxBytes"`
	// CPUQuotaPercent caps the run cgroup, 100 means one full core.
	CPUQuotaPercent  int  `yaml:"cpuQuotaPercent"`
	EnableSeccomp    bool `yaml:"enableSeccomp"`
	EnableCgroup     bool `yaml:"enableCgroup"`
	EnableNamespaces bool `yaml:"enableNamespaces"`
}
