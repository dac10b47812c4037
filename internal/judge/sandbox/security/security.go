// Package security defines sandbox isolation profiles.
package security

// IsolationProfile describes namespace and seccomp settings for one run.
type IsolationProfile struct {
	RootFS         string
	SeccompProfile string
	// DisableNetwork places the run in a fresh network namespace with no interfaces.
	DisableNetwork bool
}
