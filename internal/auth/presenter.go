package auth

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/browser"
)

// Presenter shows the interactive sign-in page to a person.
type Presenter interface {
	Available() bool
	OpenURL(url string) error
}

// NonePresenter never presents; interactive sign-in fails immediately.
type NonePresenter struct{}

func (NonePresenter) Available() bool { return false }

func (NonePresenter) OpenURL(string) error { return ErrNoPresenter }

// BrowserPresenter opens the system browser when a desktop session exists.
type BrowserPresenter struct {
	Getenv func(string) string
	GOOS   string
	Open   func(url string) error
}

// NewBrowserPresenter returns a presenter for the current desktop session.
func NewBrowserPresenter() BrowserPresenter {
	return BrowserPresenter{Getenv: os.Getenv, GOOS: runtime.GOOS, Open: browser.OpenURL}
}

func (b BrowserPresenter) Available() bool {
	switch b.GOOS {
	case "darwin", "windows":
		return true
	}
	if b.Getenv == nil {
		return false
	}
	return b.Getenv("DISPLAY") != "" || b.Getenv("WAYLAND_DISPLAY") != ""
}

func (b BrowserPresenter) OpenURL(url string) error {
	if b.Open == nil {
		return ErrNoPresenter
	}
	return b.Open(url)
}

// TerminalPresenter prints the sign-in URL when out is an interactive terminal.
type TerminalPresenter struct {
	Out *os.File
	// Interactive overrides terminal detection when set.
	Interactive func() bool
}

func (t TerminalPresenter) Available() bool {
	if t.Interactive != nil {
		return t.Interactive()
	}
	if t.Out == nil {
		return false
	}
	fd := t.Out.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (t TerminalPresenter) OpenURL(url string) error {
	var w io.Writer = os.Stderr
	if t.Out != nil {
		w = t.Out
	}
	_, err := fmt.Fprintf(w, "To sign in, open this address in a browser on this machine:\n\n  %s\n\n", url)
	return err
}

type firstAvailable []Presenter

func (f firstAvailable) pick() Presenter {
	for _, p := range f {
		if p.Available() {
			return p
		}
	}
	return nil
}

func (f firstAvailable) Available() bool { return f.pick() != nil }

func (f firstAvailable) OpenURL(url string) error {
	if p := f.pick(); p != nil {
		return p.OpenURL(url)
	}
	return ErrNoPresenter
}

// SelectPresenter maps the auth.interactive setting to a Presenter. "auto"
// prefers the browser and falls back to the terminal.
func SelectPresenter(mode string, out *os.File) Presenter {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "none":
		return NonePresenter{}
	case "browser":
		return NewBrowserPresenter()
	case "terminal":
		return TerminalPresenter{Out: out}
	default:
		return firstAvailable{NewBrowserPresenter(), TerminalPresenter{Out: out}}
	}
}
