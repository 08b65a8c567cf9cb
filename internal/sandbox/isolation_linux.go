//go:build linux

package sandbox

import (
	"os"
	"os/exec"
)

// isolation is the launch-chain prefix placed in front of the ulimit
// wrapper. When full is false, reason explains the degradation.
type isolation struct {
	prefix []string
	full   bool
	reason string
}

// probeIsolation checks whether the host can provide full namespace
// isolation with privilege drop: root plus the util-linux unshare and
// setpriv binaries. The probe runs once at sandbox construction.
func probeIsolation() *isolation {
	if os.Geteuid() != 0 {
		return &isolation{reason: "not running as root, cannot drop privileges"}
	}

	unshare, err := exec.LookPath("unshare")
	if err != nil {
		return &isolation{reason: "unshare not found in PATH"}
	}
	setpriv, err := exec.LookPath("setpriv")
	if err != nil {
		return &isolation{reason: "setpriv not found in PATH"}
	}

	return &isolation{
		full: true,
		prefix: []string{
			unshare,
			"--net",   // New network namespace: no host network access.
			"--ipc",   // New IPC namespace.
			"--pid",   // New PID namespace.
			"--mount", // New mount namespace.
			"--uts",   // New UTS namespace.
			"--fork",  // Fork before exec so the child is PID 1 in its namespace.
			setpriv,
			"--no-new-privileges", // No privilege gain via setuid binaries.
			"--clear-groups",      // Drop supplementary groups.
			"--inh-caps=-all",     // Drop all Linux capabilities.
			"--reuid=nobody",
			"--regid=nogroup",
		},
	}
}
