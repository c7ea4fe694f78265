package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/deps"
	"github.com/lad75020/SendToOneNote/internal/ingest"
)

// CheckEndpoint verifies the upload API answers at all. No credentials are
// sent, so 401 and 403 count as reachable.
func CheckEndpoint(ctx context.Context, baseURL string) Result {
	const name = "OneNote API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/notebooks", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Passed: true, Detail: "Reachable (sign-in required for calls)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unexpected status (%d)", resp.StatusCode)}
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckQueueLayout checks access to every queue state directory under root.
func CheckQueueLayout(root string) []Result {
	layout := ingest.Layout{Root: root}
	results := make([]Result, 0, len(ingest.States))
	for _, state := range ingest.States {
		results = append(results, CheckDirectoryAccess("Queue "+string(state), layout.Dir(state)))
	}
	return results
}

// CheckSystemDeps evaluates the external binaries required by the import
// pipeline. Both the daemon and the CLI status command use it.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	if cfg == nil {
		return nil
	}
	return []deps.Status{deps.CheckGhostscript(ctx, cfg.Ghostscript.Binary)}
}

// CheckAuth reports whether sign-in is configured and whether a token cache
// already exists.
func CheckAuth(cfg *config.Config) Result {
	const name = "Sign-in"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Auth.ClientID) == "" {
		return Result{Name: name, Detail: "Missing client id"}
	}
	if info, err := os.Stat(cfg.TokenCachePath()); err == nil && info.Size() > 0 {
		return Result{Name: name, Passed: true, Detail: "Token cache present"}
	}
	return Result{Name: name, Detail: "Sign-in required (run login)"}
}

func summarizeNetError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (API unreachable)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
