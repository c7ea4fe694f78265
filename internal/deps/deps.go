package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

// Requirement describes an external program the daemon shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs are passed to the resolved binary; the first output line
	// is reported as its version. Empty skips the probe.
	VersionArgs []string
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Ghostscript is the requirement for the PostScript converter and page
// renderer.
func Ghostscript(binary string) Requirement {
	return Requirement{
		Name:        "Ghostscript",
		Command:     binary,
		Description: "Converts PostScript jobs and renders page images",
		VersionArgs: []string{"--version"},
	}
}

// CheckGhostscript checks the configured Ghostscript binary.
func CheckGhostscript(ctx context.Context, binary string) Status {
	return Check(ctx, Ghostscript(binary))
}

// CheckAll evaluates requirements in order.
func CheckAll(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, Check(ctx, req))
	}
	return results
}

// Check resolves req on PATH and, when it resolves, probes its version. A
// failed probe leaves the binary available and explains itself in Detail.
func Check(ctx context.Context, req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Available = true
	status.Command = resolved
	if len(req.VersionArgs) == 0 {
		return status
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, resolved, req.VersionArgs...).Output()
	if err != nil {
		status.Detail = fmt.Sprintf("version probe failed: %v", err)
		return status
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	if line = strings.TrimSpace(line); line != "" {
		status.Detail = "version " + line
	}
	return status
}
