package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lad75020/SendToOneNote/internal/extract"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/onenote"
	"github.com/lad75020/SendToOneNote/internal/services"
)

// Extractor turns a staged document into page content.
type Extractor interface {
	Prepare(ctx context.Context, path, title string) (extract.Source, func(), error)
	Extract(ctx context.Context, src extract.Source) (extract.Content, error)
	BuildDocument(c extract.Content) (string, error)
}

// Uploader sends page content to the notebook service.
type Uploader interface {
	Upload(ctx context.Context, target onenote.Target, page onenote.Page) (onenote.Result, error)
}

// Outcome summarizes one pipeline run.
type Outcome struct {
	CorrelationID string
	PageID        string
	WebURL        string
	Pages         int
	Parts         int
	Mode          extract.Mode
	Fallback      bool
	Placeholder   bool
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Pipeline runs prepare, extract and upload for one job, strictly in order.
type Pipeline struct {
	extractor Extractor
	uploader  Uploader
	target    onenote.Target
	logger    *slog.Logger
	newID     func() string
	now       func() time.Time
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logging.NewComponentLogger(logger, "pipeline") }
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(fn func() string) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// NewPipeline constructs a Pipeline that uploads to target.
func NewPipeline(extractor Extractor, uploader Uploader, target onenote.Target, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		extractor: extractor,
		uploader:  uploader,
		target:    target,
		logger:    logging.NewComponentLogger(nil, "pipeline"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Target returns the configured upload target.
func (p *Pipeline) Target() onenote.Target {
	return p.target
}

// Run processes job. Any error is terminal for the job.
func (p *Pipeline) Run(ctx context.Context, job Job) (Outcome, error) {
	outcome := Outcome{CorrelationID: p.newID(), StartedAt: p.now()}
	ctx = services.WithRequestID(services.WithJob(ctx, job.Stem), outcome.CorrelationID)
	finish := func(err error) (Outcome, error) {
		outcome.FinishedAt = p.now()
		return outcome, err
	}

	logger := logging.WithContext(services.WithStage(ctx, "prepare"), p.logger)
	logger.Info("job started",
		logging.String("title", job.Title()),
		logging.String("user", job.Meta.User),
		logging.String("document", job.DocumentName()),
		logging.String("target", p.target.String()),
		logging.String(logging.FieldEventType, "job_started"),
	)

	src, cleanup, err := p.extractor.Prepare(services.WithStage(ctx, "prepare"), job.Document, job.Title())
	if err != nil {
		p.logFailure(services.WithStage(ctx, "prepare"), "document conversion failed", err)
		return finish(err)
	}
	defer cleanup()

	extractCtx := services.WithStage(ctx, "extract")
	content, err := p.extractor.Extract(extractCtx, src)
	if err != nil {
		p.logFailure(extractCtx, "content extraction failed", err)
		return finish(err)
	}
	outcome.Pages = content.PageCount
	outcome.Parts = len(content.Parts)
	outcome.Mode = content.Mode
	outcome.Fallback = content.Fallback
	outcome.Placeholder = content.Placeholder
	logging.WithContext(extractCtx, p.logger).Info("content built",
		logging.Int("pages", content.PageCount),
		logging.Int("parts", len(content.Parts)),
		logging.String("mode", string(content.Mode)),
		logging.Bool("fallback", content.Fallback),
		logging.Bool("placeholder", content.Placeholder),
	)

	uploadCtx := services.WithStage(ctx, "upload")
	page := onenote.Page{Title: content.Title, Fragment: content.Body, Parts: content.Parts}
	if !p.target.Append() {
		document, err := p.extractor.BuildDocument(content)
		if err != nil {
			err = services.Wrap(services.ErrExtraction, "extract", "build document", "", err)
			p.logFailure(extractCtx, "page document build failed", err)
			return finish(err)
		}
		page.Document = document
	}
	result, err := p.uploader.Upload(uploadCtx, p.target, page)
	if err != nil {
		p.logFailure(uploadCtx, "upload failed", err)
		return finish(err)
	}
	outcome.PageID = result.PageID
	outcome.WebURL = result.WebURL

	outcome, _ = finish(nil)
	logging.WithContext(uploadCtx, p.logger).Info("job uploaded",
		logging.String("page_id", result.PageID),
		logging.String("web_url", result.WebURL),
		logging.Duration("elapsed", outcome.FinishedAt.Sub(outcome.StartedAt)),
		logging.String(logging.FieldEventType, "job_uploaded"),
	)
	return outcome, nil
}

func (p *Pipeline) logFailure(ctx context.Context, msg string, err error) {
	logging.ErrorWithContext(logging.WithContext(ctx, p.logger), msg, "job_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, services.FailureKind(err)),
		logging.String(logging.FieldErrorHint, hintFor(err)),
	)
}

func hintFor(err error) string {
	switch services.FailureKind(err) {
	case "conversion":
		return "check that ghostscript is installed and the print stream is valid"
	case "extraction":
		return "the document has no text or renderable pages; try import mode image"
	case "authentication", "configuration":
		return "run sendtoonenote login and check auth.client_id"
	case "upload":
		return "check the target section or page id and the response body"
	default:
		return "check logs for details"
	}
}
