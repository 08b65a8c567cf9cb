package sandbox

import (
	"fmt"
	"os/exec"
	"strings"
)

// limiterFlag is one ulimit flag the wrapper can apply, with the value it
// takes from a ResourceLimits profile (in the unit ulimit expects).
type limiterFlag struct {
	letter string
	name   string
	value  func(ResourceLimits) int
}

var limiterFlagTable = []limiterFlag{
	{"c", "core dumps", func(ResourceLimits) int { return 0 }},
	{"v", "address space", func(l ResourceLimits) int { return l.MaxMemoryMB * 1024 }}, // KB
	{"t", "cpu time", func(l ResourceLimits) int { return l.MaxCPUSeconds }},
	{"u", "process count", func(l ResourceLimits) int { return l.MaxProcesses }},
	{"f", "file size", func(l ResourceLimits) int { return l.MaxFileSizeMB * 2048 }}, // 512-byte blocks
}

// probeLimiter reports which ulimit flags the shell understands, as a string
// of flag letters plus the names of the unsupported limits. Reading a limit
// (ulimit -X with no value) is side-effect free and fails on shells that do
// not know the flag — dash has no -u, for example. Probed once at sandbox
// construction, like probeIsolation.
func probeLimiter(shell string) (supported string, missing []string) {
	for _, f := range limiterFlagTable {
		if err := exec.Command(shell, "-c", "ulimit -"+f.letter).Run(); err == nil {
			supported += f.letter
		} else {
			missing = append(missing, f.name+" (-"+f.letter+")")
		}
	}
	return supported, missing
}

// limiterScript builds the shell fragment that applies the resource-limit
// profile and then replaces itself with the untrusted command. Only the
// probed flags are emitted, one ulimit invocation per limit — POSIX ulimit
// takes a single flag per call, and dash rejects the combined form outright.
//
// Using exec "$@" with positional parameters prevents shell injection — the
// command is never interpolated into the shell string. The limits are NOT
// silenced: if any ulimit call fails the child aborts with the sentinel exit
// code before untrusted code runs.
func limiterScript(l ResourceLimits, flags string) string {
	var calls []string
	for _, f := range limiterFlagTable {
		if strings.Contains(flags, f.letter) {
			calls = append(calls, fmt.Sprintf("ulimit -%s %d", f.letter, f.value(l)))
		}
	}
	return fmt.Sprintf("%s || { echo %q >&2; exit %d; }; exec \"$@\"",
		strings.Join(calls, " && "), limiterFailMessage, limiterFailExit)
}
