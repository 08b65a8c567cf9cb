//go:build !linux

package sandbox

// isolation is the launch-chain prefix placed in front of the ulimit
// wrapper. When full is false, reason explains the degradation.
type isolation struct {
	prefix []string
	full   bool
	reason string
}

// probeIsolation always degrades off Linux: namespaces are a Linux facility.
// Executions still get resource limits, a private temp directory, a rebuilt
// environment, and process-group containment.
func probeIsolation() *isolation {
	return &isolation{reason: "namespace isolation requires Linux"}
}
