// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs"`
	WallTimeMs int64 `yaml:"wallTimeMs"`
	MemoryMB   int64 `yaml:"memoryMB"`
	StackMB    int64 `yaml:"stackMB"`
	OutputMB   int64 `yaml:"outputMB"`
	PIDs       int64 `yaml:"pids"`
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is the unified execution specification for one task.
// Paths are container paths; BindMounts map them back to the host.
type RunSpec struct {
	SubmissionID string
	TestID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	StdinPath    string
	StdoutPath   string
	StderrPath   string
	BindMounts   []MountSpec
	Profile      string
	Limits       ResourceLimit
}
