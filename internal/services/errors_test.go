package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lad75020/SendToOneNote/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrConversion, "prepare", "ghostscript", "exit status 1", base)
	if !errors.Is(err, services.ErrConversion) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"conversion failed", "prepare", "ghostscript", "exit status 1", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutCauseOrDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err)
	}
}

func TestFailureKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrMetadata, "dispatch", "decode", "", nil), "metadata"},
		{services.Wrap(services.ErrConversion, "prepare", "", "", nil), "conversion"},
		{services.Wrap(services.ErrExtraction, "extract", "", "no text", nil), "extraction"},
		{services.Wrap(services.ErrAuthentication, "token", "", "", nil), "authentication"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrUpload, "upload", "", "", nil)), "upload"},
		{services.Wrap(services.ErrStaging, "finish", "", "", nil), "staging"},
		{services.Wrap(services.ErrConfiguration, "token", "", "no client id", nil), "configuration"},
		{errors.New("plain"), "unknown"},
	}
	for _, tc := range cases {
		if got := services.FailureKind(tc.err); got != tc.want {
			t.Fatalf("FailureKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestFailureKindPrefersConfiguration(t *testing.T) {
	inner := services.Wrap(services.ErrConfiguration, "token", "", "client id missing", nil)
	err := services.Wrap(services.ErrAuthentication, "token", "acquire", "", inner)
	if got := services.FailureKind(err); got != "configuration" {
		t.Fatalf("expected configuration, got %q", got)
	}
}
