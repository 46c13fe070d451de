package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
)

// Requirement names an external tool splicer shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the availability of one Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries reports availability for each requirement, in order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		status.Detail = locate(status.Command)
		status.Available = status.Detail == ""
		results = append(results, status)
	}
	return results
}

// locate returns an empty string when command can be executed, otherwise
// the reason it cannot.
func locate(command string) string {
	if command == "" {
		return "command not configured"
	}
	if !strings.ContainsAny(command, `/\`) {
		if _, err := exec.LookPath(command); err != nil {
			return fmt.Sprintf("binary %q not found on PATH", command)
		}
		return ""
	}
	info, err := os.Stat(command)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Sprintf("binary %q does not exist", command)
	case err != nil:
		return fmt.Sprintf("binary %q: %v", command, err)
	case !isExecutable(info):
		return fmt.Sprintf("binary %q is not executable", command)
	}
	return ""
}
