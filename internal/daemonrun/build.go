package daemonrun

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lad75020/SendToOneNote/internal/auth"
	"github.com/lad75020/SendToOneNote/internal/config"
	"github.com/lad75020/SendToOneNote/internal/extract"
	"github.com/lad75020/SendToOneNote/internal/ghostscript"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/onenote"
)

// NewTokenProvider builds the bearer token provider backed by the identity
// SDK and the on-disk token cache. Interactive prompts go to out.
func NewTokenProvider(cfg *config.Config, logger *slog.Logger, out *os.File) (*auth.Provider, error) {
	// Without a client id the provider fails every request with a
	// configuration error, so the SDK is never constructed.
	var id auth.Identity
	if strings.TrimSpace(cfg.Auth.ClientID) != "" {
		identity, err := auth.NewMSALIdentity(auth.Settings{
			ClientID:    cfg.Auth.ClientID,
			Authority:   cfg.Auth.Authority,
			RedirectURI: cfg.Auth.RedirectURI,
			Scopes:      cfg.Auth.Scopes,
		}, auth.NewFileCache(cfg.TokenCachePath()))
		if err != nil {
			return nil, err
		}
		id = identity
	}
	return auth.NewProvider(cfg.Auth.ClientID, id,
		auth.WithPresenter(auth.SelectPresenter(cfg.Auth.Interactive, out)),
		auth.WithLogger(logger),
	), nil
}

// NewClient builds the page API client from config.
func NewClient(cfg *config.Config, tokens onenote.TokenSource, logger *slog.Logger) *onenote.Client {
	return onenote.NewClient(tokens,
		onenote.WithBaseURL(cfg.OneNote.BaseURL),
		onenote.WithTimeout(cfg.RequestTimeout()),
		onenote.WithLogger(logger),
	)
}

// NewExtractor builds the extractor for the configured import mode with
// Ghostscript as converter and renderer.
func NewExtractor(cfg *config.Config, logger *slog.Logger) (*extract.Extractor, error) {
	mode, err := extract.ParseMode(cfg.Import.Mode)
	if err != nil {
		return nil, fmt.Errorf("import mode: %w", err)
	}
	gs := ghostscript.New(cfg.Ghostscript.Binary,
		ghostscript.WithRenderTimeout(cfg.GhostscriptTimeout()),
		ghostscript.WithLogger(logger),
	)
	return extract.New(mode,
		extract.WithLimits(extract.Limits{
			Text:     cfg.Import.TextPageLimit,
			Image:    cfg.Import.ImagePageLimit,
			Fallback: cfg.Import.FallbackPageLimit,
		}),
		extract.WithRenderDPI(cfg.Import.RenderDPI),
		extract.WithRenderer(gs),
		extract.WithConverter(gs, cfg.GhostscriptTimeout()),
		extract.WithLogger(logger),
	), nil
}

// Target returns the configured upload target.
func Target(cfg *config.Config) onenote.Target {
	return onenote.Target{SectionID: cfg.OneNote.SectionID, PageID: cfg.OneNote.PageID}
}

// NewPipeline wires extraction and upload for the configured target.
func NewPipeline(cfg *config.Config, tokens onenote.TokenSource, logger *slog.Logger) (*ingest.Pipeline, error) {
	extractor, err := NewExtractor(cfg, logger)
	if err != nil {
		return nil, err
	}
	client := NewClient(cfg, tokens, logger)
	return ingest.NewPipeline(extractor, client, Target(cfg), ingest.WithPipelineLogger(logger)), nil
}
