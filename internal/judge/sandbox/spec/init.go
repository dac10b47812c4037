package spec

import (
	"encoding/json"
	"errors"
	"io"
)

// InitRequest is the document the sandbox-init helper reads from stdin before
// it applies isolation and execs the task command.
type InitRequest struct {
	Run            RunSpec `json:"run"`
	RootFS         string  `json:"rootfs,omitempty"`
	SeccompProfile string  `json:"seccompProfile,omitempty"`
	Seccomp        bool    `json:"seccomp"`
	Namespaces     bool    `json:"namespaces"`
	// AddressLimit makes the helper cap the address space with an rlimit.
	// The engine sets it when no memory cgroup is in use.
	AddressLimit bool `json:"addressLimit"`
}

// Validate rejects requests the helper cannot execute.
func (r InitRequest) Validate() error {
	switch {
	case len(r.Run.Cmd) == 0 || r.Run.Cmd[0] == "":
		return errors.New("command is required")
	case r.Run.WorkDir == "":
		return errors.New("work dir is required")
	case !r.Namespaces && (r.RootFS != "" || len(r.Run.BindMounts) > 0):
		return errors.New("rootfs and bind mounts need namespaces")
	}
	return nil
}

// DecodeInitRequest reads one request from r.
func DecodeInitRequest(r io.Reader) (InitRequest, error) {
	var req InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return InitRequest{}, err
	}
	return req, req.Validate()
}
