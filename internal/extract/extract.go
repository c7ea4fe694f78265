// Package extract turns a queued document into page markup plus binary
// attachments according to the configured import mode.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/services"
	"github.com/lad75020/SendToOneNote/internal/textquality"
)

// Mode selects how document content becomes page markup.
type Mode string

const (
	ModeText   Mode = "text"
	ModeImage  Mode = "image"
	ModeHybrid Mode = "hybrid"
)

// ParseMode maps a configuration value to a Mode.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case ModeText:
		return ModeText, nil
	case ModeImage:
		return ModeImage, nil
	case ModeHybrid, "":
		return ModeHybrid, nil
	}
	return "", fmt.Errorf("unknown import mode %q", value)
}

// PartKind distinguishes rendered pages from embedded images.
type PartKind int

const (
	PartRenderedPage PartKind = iota
	PartEmbeddedImage
)

func (k PartKind) String() string {
	if k == PartEmbeddedImage {
		return "embedded"
	}
	return "rendered"
}

// ContentPart is one binary attachment referenced from the markup as name:<Token>.
type ContentPart struct {
	Token    string
	MIMEType string
	Data     []byte
	Page     int
	Kind     PartKind
}

// Content is the extraction result for one document.
type Content struct {
	Title       string
	Body        string
	Parts       []ContentPart
	PageCount   int
	Mode        Mode
	Fallback    bool
	Placeholder bool
}

// Source describes the PDF to extract from.
type Source struct {
	Path  string
	Title string
	// Lossy marks a PDF produced by converting a print stream.
	Lossy bool
}

// PlaceholderText replaces page text judged unreliable.
const PlaceholderText = "Text not imported: the converted document did not carry usable character data. See the page images."

// Limits caps the pages each strategy touches.
type Limits struct {
	Text     int
	Image    int
	Fallback int
}

// DefaultLimits mirrors the configuration defaults.
var DefaultLimits = Limits{Text: 200, Image: 200, Fallback: 30}

// Renderer rasterizes whole pages.
type Renderer interface {
	RenderPages(ctx context.Context, pdf string, maxPages, dpi int) ([][]byte, error)
}

// Converter turns a PostScript file into a PDF.
type Converter interface {
	ConvertPS(ctx context.Context, input, output string, timeout time.Duration) error
}

// Extractor produces Content from documents.
type Extractor struct {
	mode           Mode
	limits         Limits
	dpi            int
	renderer       Renderer
	converter      Converter
	convertTimeout time.Duration
	open           Opener
	logger         *slog.Logger
	now            func() time.Time
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithLimits overrides page caps; zero values keep the defaults.
func WithLimits(l Limits) Option {
	return func(e *Extractor) {
		if l.Text > 0 {
			e.limits.Text = l.Text
		}
		if l.Image > 0 {
			e.limits.Image = l.Image
		}
		if l.Fallback > 0 {
			e.limits.Fallback = l.Fallback
		}
	}
}

// WithRenderDPI sets the full-page render resolution.
func WithRenderDPI(dpi int) Option {
	return func(e *Extractor) {
		if dpi > 0 {
			e.dpi = dpi
		}
	}
}

// WithRenderer sets the page renderer used by image mode and the hybrid fallback.
func WithRenderer(r Renderer) Option {
	return func(e *Extractor) { e.renderer = r }
}

// WithConverter sets the PostScript converter used by Prepare.
func WithConverter(c Converter, timeout time.Duration) Option {
	return func(e *Extractor) {
		e.converter = c
		e.convertTimeout = timeout
	}
}

// WithOpener replaces PDF parsing, mainly for tests.
func WithOpener(open Opener) Option {
	return func(e *Extractor) {
		if open != nil {
			e.open = open
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) { e.logger = logging.NewComponentLogger(logger, "extract") }
}

// New constructs an Extractor for mode.
func New(mode Mode, opts ...Option) *Extractor {
	e := &Extractor{
		mode:   mode,
		limits: DefaultLimits,
		dpi:    144,
		open:   OpenPDF,
		logger: logging.NewComponentLogger(nil, "extract"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mode returns the configured import mode.
func (e *Extractor) Mode() Mode {
	return e.mode
}

// Prepare returns a Source for path. PostScript input is converted into a
// temporary PDF first; the returned cleanup removes it.
func (e *Extractor) Prepare(ctx context.Context, path, title string) (Source, func(), error) {
	noop := func() {}
	if !strings.EqualFold(filepath.Ext(path), ".ps") {
		return Source{Path: path, Title: title}, noop, nil
	}
	if e.converter == nil {
		return Source{}, noop, services.Wrap(services.ErrConversion, "prepare", "convert", "no converter configured", nil)
	}
	dir, err := os.MkdirTemp("", "sendtoonenote-convert-")
	if err != nil {
		return Source{}, noop, services.Wrap(services.ErrConversion, "prepare", "temp dir", "", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	output := filepath.Join(dir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".pdf")
	if err := e.converter.ConvertPS(ctx, path, output, e.convertTimeout); err != nil {
		cleanup()
		return Source{}, noop, err
	}
	return Source{Path: output, Title: title, Lossy: true}, cleanup, nil
}

// Extract builds page content for src.
func (e *Extractor) Extract(ctx context.Context, src Source) (Content, error) {
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	switch e.mode {
	case ModeImage:
		return e.renderedContent(ctx, src, e.limits.Image, false)
	case ModeText:
		return e.textContent(src)
	default:
		return e.hybridContent(ctx, src)
	}
}

type pageContent struct {
	number int
	text   string
	images []ContentPart
}

func (e *Extractor) readPages(src Source, limit int) (Document, []pageContent, error) {
	doc, err := e.open(src.Path, e.logger)
	if err != nil {
		return nil, nil, err
	}
	count := doc.PageCount()
	if count > limit {
		e.logger.Info("page cap applied",
			logging.Int("pages", count),
			logging.Int("limit", limit),
			logging.String(logging.FieldEventType, "page_cap_applied"),
		)
		count = limit
	}
	pages := make([]pageContent, 0, count)
	for n := 1; n <= count; n++ {
		pages = append(pages, pageContent{number: n, text: doc.PageText(n)})
	}
	return doc, pages, nil
}

func (e *Extractor) textContent(src Source) (Content, error) {
	doc, pages, err := e.readPages(src, e.limits.Text)
	if err != nil {
		return Content{}, services.Wrap(services.ErrExtraction, "extract", "open", filepath.Base(src.Path), err)
	}
	if !hasText(pages) {
		return Content{}, services.Wrap(services.ErrExtraction, "extract", "text", "document has no extractable text", nil)
	}
	body, err := assembleBody(pages, false)
	if err != nil {
		return Content{}, err
	}
	return Content{Title: src.Title, Body: body, PageCount: doc.PageCount(), Mode: ModeText}, nil
}

func (e *Extractor) hybridContent(ctx context.Context, src Source) (Content, error) {
	doc, pages, err := e.readPages(src, e.limits.Text)
	if err != nil {
		e.logger.Info("pdf parse failed; rendering pages instead", logging.Error(err))
	}
	if err != nil || !hasText(pages) {
		return e.renderedContent(ctx, src, e.limits.Fallback, true)
	}

	placeholder := false
	if src.Lossy {
		textBody, err := assembleBody(pages, false)
		if err != nil {
			return Content{}, err
		}
		report := textquality.Assess(textquality.PlainText(textBody))
		if report.Gibberish {
			placeholder = true
			logging.WarnWithContext(e.logger, "converted text looks unreliable; using placeholder", "text_quality_gibberish",
				logging.String("reason", report.Reason),
				logging.String(logging.FieldImpact, "page text replaced by a note; images are kept"),
				logging.String(logging.FieldErrorHint, "print from an application that embeds font maps, or use image mode"),
			)
		}
	}

	var parts []ContentPart
	for i := range pages {
		if pages[i].number > e.limits.Image {
			break
		}
		for k, img := range doc.PageImages(pages[i].number) {
			part := ContentPart{
				Token:    fmt.Sprintf("img-%d-%d", pages[i].number, k+1),
				MIMEType: img.MIMEType,
				Data:     img.Data,
				Page:     pages[i].number,
				Kind:     PartEmbeddedImage,
			}
			pages[i].images = append(pages[i].images, part)
			parts = append(parts, part)
		}
	}

	body, err := assembleBody(pages, placeholder)
	if err != nil {
		return Content{}, err
	}
	return Content{
		Title:       src.Title,
		Body:        body,
		Parts:       parts,
		PageCount:   doc.PageCount(),
		Mode:        ModeHybrid,
		Placeholder: placeholder,
	}, nil
}

func (e *Extractor) renderedContent(ctx context.Context, src Source, limit int, fallback bool) (Content, error) {
	if e.renderer == nil {
		return Content{}, services.Wrap(services.ErrExtraction, "extract", "render", "no renderer configured", nil)
	}
	images, err := e.renderer.RenderPages(ctx, src.Path, limit, e.dpi)
	if err != nil {
		return Content{}, services.Wrap(services.ErrExtraction, "extract", "render", filepath.Base(src.Path), err)
	}
	if len(images) == 0 {
		return Content{}, services.Wrap(services.ErrExtraction, "extract", "render", "document has no renderable pages", nil)
	}

	nodes := make([]*html.Node, 0, len(images)*2)
	parts := make([]ContentPart, 0, len(images))
	for i, data := range images {
		page := i + 1
		token := "page-" + strconv.Itoa(page)
		if i > 0 {
			nodes = append(nodes, separator())
		}
		div := pageDiv(page)
		div.AppendChild(attachmentImage(token, "Page "+strconv.Itoa(page)))
		nodes = append(nodes, div)
		parts = append(parts, ContentPart{Token: token, MIMEType: "image/png", Data: data, Page: page, Kind: PartRenderedPage})
	}
	body, err := renderFragment(nodes)
	if err != nil {
		return Content{}, err
	}
	mode := ModeImage
	if fallback {
		mode = ModeHybrid
	}
	return Content{Title: src.Title, Body: body, Parts: parts, PageCount: len(images), Mode: mode, Fallback: fallback}, nil
}

// assembleBody renders one div per page that has text or images, separated by
// horizontal rules. Embedded images follow the page's text.
func assembleBody(pages []pageContent, placeholder bool) (string, error) {
	var nodes []*html.Node
	for _, page := range pages {
		if page.text == "" && len(page.images) == 0 {
			continue
		}
		div := pageDiv(page.number)
		if page.text != "" {
			if placeholder {
				div.AppendChild(italicParagraph(PlaceholderText))
			} else {
				for _, line := range strings.Split(page.text, "\n") {
					div.AppendChild(paragraph(line))
				}
			}
		}
		for _, img := range page.images {
			div.AppendChild(attachmentImage(img.Token, "Image from page "+strconv.Itoa(page.number)))
		}
		if len(nodes) > 0 {
			nodes = append(nodes, separator())
		}
		nodes = append(nodes, div)
	}
	return renderFragment(nodes)
}

func hasText(pages []pageContent) bool {
	for _, page := range pages {
		if strings.TrimSpace(page.text) != "" {
			return true
		}
	}
	return false
}

// BuildDocument renders c as a complete page document.
func (e *Extractor) BuildDocument(c Content) (string, error) {
	return BuildPage(c.Title, c.Body, e.now())
}
