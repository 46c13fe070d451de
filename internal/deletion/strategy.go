package deletion

import (
	"fmt"
	"strings"
)

// Outcome is the typed result of one strategy attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable-failure"
	OutcomeNotFound  Outcome = "not-found"
)

// Done reports whether the outcome ends the deletion.
func (o Outcome) Done() bool {
	return o == OutcomeSuccess || o == OutcomeNotFound
}

const (
	StrategyUnlink     = "unlink"
	StrategyDel        = "cmd-del"
	StrategyPowerShell = "powershell-remove-item"
	StrategyRm         = "rm"
	StrategyFind       = "find-delete"
)

type command struct {
	strategy string
	name     string
	args     []string
}

// fallbackCommands lists the shell strategies tried after unlink retries,
// in order, for the given platform.
func fallbackCommands(goos, path string) []command {
	if goos == "windows" {
		literal := strings.ReplaceAll(path, "'", "''")
		return []command{
			{strategy: StrategyDel, name: "cmd", args: []string{"/C", "del", "/f", "/q", path}},
			{strategy: StrategyPowerShell, name: "powershell", args: []string{
				"-NoProfile", "-NonInteractive", "-Command",
				fmt.Sprintf("Remove-Item -LiteralPath '%s' -Force -ErrorAction SilentlyContinue", literal),
			}},
		}
	}
	return []command{
		{strategy: StrategyRm, name: "rm", args: []string{"-f", "--", path}},
		{strategy: StrategyFind, name: "find", args: []string{path, "-maxdepth", "0", "-delete"}},
	}
}

// Remediation returns manual removal guidance for a path that survived every
// strategy.
func Remediation(goos, path string) string {
	switch goos {
	case "windows":
		return fmt.Sprintf("The file may be locked by another program (an antivirus scanner or a media player). "+
			"Close programs using it, wait a few seconds, then delete it manually: %s. "+
			"If it stays locked, restart Windows and try again.", path)
	case "darwin":
		return fmt.Sprintf("Another process may hold the file open. Check with `lsof %q`, quit that application, "+
			"then remove it with `rm -f %q`. Clear the immutable flag with `chflags nouchg %q` if needed.", path, path, path)
	default:
		return fmt.Sprintf("Another process may hold the file open or the directory may not be writable. "+
			"Check with `lsof %q` or `fuser %q`, stop that process, then remove it with `rm -f %q`.", path, path, path)
	}
}
