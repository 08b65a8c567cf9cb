package tools

import (
	"strconv"
	"strings"

	"github.com/jkaninda/sanduku/internal/sandbox"
)

// FormatResult renders a sandbox execution into the single string the LLM
// client sees. Both output streams always appear when present, clearly
// delimited; stderr never suppresses captured stdout, and the exit code is
// always surfaced.
func FormatResult(res *sandbox.ExecutionResult) string {
	var sections []string

	sections = append(sections, "Exit code: "+strconv.Itoa(res.ExitCode))

	if out := strings.TrimSpace(res.Stdout); out != "" {
		sections = append(sections, "Output:\n```\n"+out+"\n```")
	}
	if errOut := strings.TrimSpace(res.Stderr); errOut != "" {
		sections = append(sections, "Error:\n```\n"+errOut+"\n```")
	}

	if len(sections) == 1 {
		sections = append(sections, "No output")
	}

	return strings.Join(sections, "\n\n")
}

// AppendError attaches a diagnostic to content without hiding it.
func AppendError(text, errMsg string) string {
	if text == "" {
		return "<error>" + errMsg + "</error>"
	}
	return text + "\n\n<error>" + errMsg + "</error>"
}

// PrependError puts a diagnostic before content, e.g. when a fallback
// representation is returned instead of the requested one.
func PrependError(text, errMsg string) string {
	return "<error>" + errMsg + "</error>\n\n" + text
}
