package daemonrun

import (
	"context"
	"errors"
	"testing"

	"github.com/lad75020/SendToOneNote/internal/extract"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/services"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
)

func TestNewExtractorUsesConfiguredMode(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithImportMode("hybrid"))
	ex, err := NewExtractor(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	if ex.Mode() != extract.ModeHybrid {
		t.Fatalf("expected hybrid mode, got %v", ex.Mode())
	}

	cfg.Import.Mode = "sideways"
	if _, err := NewExtractor(cfg, logging.NewNop()); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestTokenProviderWithoutClientIDFailsAsConfiguration(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Auth.ClientID = ""
	provider, err := NewTokenProvider(cfg, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("NewTokenProvider: %v", err)
	}
	if _, err := provider.Token(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestTargetAndPipeline(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithTarget("sec", "page"))
	target := Target(cfg)
	if !target.Append() || target.SectionID != "sec" {
		t.Fatalf("unexpected target %#v", target)
	}
	pipeline, err := NewPipeline(cfg, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if pipeline.Target() != target {
		t.Fatalf("pipeline target %#v != %#v", pipeline.Target(), target)
	}
}
