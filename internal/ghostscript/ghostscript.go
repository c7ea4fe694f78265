// Package ghostscript drives the gs binary for PostScript conversion and
// full-page rendering.
package ghostscript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/services"
)

// DefaultBinary is the executable looked up on PATH when none is configured.
const DefaultBinary = "gs"

const defaultRenderTimeout = 2 * time.Minute

// Runner executes name with args and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Result is the reply of a conversion request.
type Result struct {
	OK  bool
	Log string
}

// Tool wraps one gs binary.
type Tool struct {
	binary        string
	run           Runner
	logger        *slog.Logger
	renderTimeout time.Duration
}

// Option customizes a Tool.
type Option func(*Tool)

// WithRunner replaces process execution, mainly for tests.
func WithRunner(r Runner) Option {
	return func(t *Tool) {
		if r != nil {
			t.run = r
		}
	}
}

// WithRenderTimeout bounds each RenderPages call.
func WithRenderTimeout(d time.Duration) Option {
	return func(t *Tool) {
		if d > 0 {
			t.renderTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tool) {
		t.logger = logging.NewComponentLogger(logger, "ghostscript")
	}
}

// New constructs a Tool for binary.
func New(binary string, opts ...Option) *Tool {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	t := &Tool{
		binary:        binary,
		run:           defaultRunner,
		logger:        logging.NewComponentLogger(nil, "ghostscript"),
		renderTimeout: defaultRenderTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Binary returns the configured executable.
func (t *Tool) Binary() string {
	return t.binary
}

// Convert turns the PostScript file at input into a PDF at output. It never
// returns an error: failures, including the timeout, are reported as OK=false
// with the tool output in Log.
func (t *Tool) Convert(ctx context.Context, input, output string, timeout time.Duration) Result {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	args := []string{
		"-dSAFER", "-dBATCH", "-dNOPAUSE", "-dQUIET",
		"-sDEVICE=pdfwrite",
		"-sOutputFile=" + output,
		input,
	}
	out, err := t.run(runCtx, t.binary, args...)
	logText := strings.TrimSpace(string(out))
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			logText = strings.TrimSpace(fmt.Sprintf("timed out after %s\n%s", timeout, logText))
		} else {
			logText = strings.TrimSpace(fmt.Sprintf("%v\n%s", err, logText))
		}
		return Result{OK: false, Log: logText}
	}
	if info, statErr := os.Stat(output); statErr != nil || info.Size() == 0 {
		return Result{OK: false, Log: strings.TrimSpace("no output produced\n" + logText)}
	}
	return Result{OK: true, Log: logText}
}

// ConvertPS runs Convert and maps a failed result to an error tagged with
// services.ErrConversion (and services.ErrTimeout when the deadline fired).
func (t *Tool) ConvertPS(ctx context.Context, input, output string, timeout time.Duration) error {
	started := time.Now()
	result := t.Convert(ctx, input, output, timeout)
	if result.OK {
		t.logger.Debug("postscript converted",
			logging.String("input", filepath.Base(input)),
			logging.Duration("elapsed", time.Since(started)),
		)
		return nil
	}
	var cause error = errors.New(firstLine(result.Log))
	if strings.HasPrefix(result.Log, "timed out") {
		cause = fmt.Errorf("%w: %s", services.ErrTimeout, firstLine(result.Log))
	}
	t.logger.Debug("ghostscript output", logging.String("log", result.Log))
	return services.Wrap(services.ErrConversion, "prepare", "ghostscript", filepath.Base(input), cause)
}

// RenderPages rasterizes the first maxPages pages of pdf at dpi and returns
// PNG data in page order. The gs process is killed once the render timeout
// passes.
func (t *Tool) RenderPages(ctx context.Context, pdf string, maxPages, dpi int) ([][]byte, error) {
	if maxPages <= 0 {
		return nil, nil
	}
	if dpi <= 0 {
		dpi = 144
	}
	dir, err := os.MkdirTemp("", "sendtoonenote-render-")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	args := []string{
		"-dSAFER", "-dBATCH", "-dNOPAUSE", "-dQUIET",
		"-sDEVICE=png16m",
		"-r" + strconv.Itoa(dpi),
		"-dFirstPage=1",
		"-dLastPage=" + strconv.Itoa(maxPages),
		"-sOutputFile=" + filepath.Join(dir, "page-%04d.png"),
		pdf,
	}
	runCtx, cancel := context.WithTimeout(ctx, t.renderTimeout)
	defer cancel()
	out, err := t.run(runCtx, t.binary, args...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			detail := fmt.Sprintf("timed out after %s", t.renderTimeout)
			return nil, services.Wrap(services.ErrExternalTool, "extract", "render pages", detail, services.ErrTimeout)
		}
		return nil, services.Wrap(services.ErrExternalTool, "extract", "render pages", firstLine(string(out)), err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if len(matches) > maxPages {
		matches = matches[:maxPages]
	}
	pages := make([][]byte, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	if text == "" {
		return "ghostscript failed"
	}
	return text
}
