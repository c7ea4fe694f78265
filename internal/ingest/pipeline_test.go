package ingest_test

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lad75020/SendToOneNote/internal/extract"
	"github.com/lad75020/SendToOneNote/internal/history"
	"github.com/lad75020/SendToOneNote/internal/ingest"
	"github.com/lad75020/SendToOneNote/internal/jobmeta"
	"github.com/lad75020/SendToOneNote/internal/notifications"
	"github.com/lad75020/SendToOneNote/internal/onenote"
	"github.com/lad75020/SendToOneNote/internal/services"
	"github.com/lad75020/SendToOneNote/internal/testsupport"
)

type uploadCapture struct {
	mu      sync.Mutex
	method  string
	path    string
	auth    string
	parts   map[string]string
	ordered []string
}

func (c *uploadCapture) handler(t *testing.T, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.method = r.Method
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		c.parts = map[string]string{}
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			t.Errorf("content type: %v", err)
			return
		}
		reader := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			c.parts[part.FormName()] = string(data)
			c.ordered = append(c.ordered, part.FormName())
		}
		w.WriteHeader(status)
		if status < 300 {
			_, _ = io.WriteString(w, `{"id":"page-1","links":{"oneNoteWebUrl":{"href":"https://example.test/page-1"}}}`)
		} else {
			_, _ = io.WriteString(w, `{"error":{"code":"20102","message":"section not found"}}`)
		}
	}
}

func TestTextModeJobUploadsToSectionAndLandsInDone(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithImportMode("text"), testsupport.WithTarget("section-1", ""))
	layout := ingest.Layout{Root: cfg.Paths.QueueRoot}
	require.NoError(t, layout.EnsureLayout())

	capture := &uploadCapture{}
	server := httptest.NewServer(capture.handler(t, http.StatusCreated))
	defer server.Close()

	testsupport.WritePDF(t, filepath.Join(layout.Incoming(), "job-1-100.pdf"), "Total due 42 EUR")
	testsupport.WriteFile(t, filepath.Join(layout.Incoming(), "job-1-100.json"),
		[]byte(`{"file":"job-1-100.pdf","title":"Invoice","user":"alice","job":"1"}`))

	client := onenote.NewClient(onenote.TokenFunc(func(context.Context) (string, error) { return "cached-token", nil }),
		onenote.WithBaseURL(server.URL))
	pipeline := ingest.NewPipeline(extract.New(extract.ModeText), client, onenote.Target{SectionID: "section-1"},
		ingest.WithIDGenerator(func() string { return "corr-1" }))
	reporter := &stubReporter{}
	stager := ingest.NewStager(layout, pipeline, ingest.WithReporter(reporter))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	stager.Dispatch(jobs[0])
	stager.Wait()

	assert.Equal(t, http.MethodPost, capture.method)
	assert.Equal(t, "/sections/section-1/pages", capture.path)
	assert.Equal(t, "Bearer cached-token", capture.auth)
	assert.Equal(t, []string{"Presentation"}, capture.ordered)
	assert.Contains(t, capture.parts["Presentation"], "<title>Invoice</title>")
	assert.Contains(t, capture.parts["Presentation"], "Total due 42 EUR")

	assert.ElementsMatch(t, []string{"job-1-100.pdf", "job-1-100.json"}, listNames(t, layout.Done()))
	assert.Empty(t, listNames(t, layout.Incoming()))
	assert.Empty(t, listNames(t, layout.Processing()))

	reports := reporter.all()
	require.Len(t, reports, 1)
	require.NoError(t, reports[0].err)
	assert.Equal(t, "corr-1", reports[0].outcome.CorrelationID)
	assert.Equal(t, "page-1", reports[0].outcome.PageID)
	assert.Equal(t, "https://example.test/page-1", reports[0].outcome.WebURL)
	assert.Equal(t, 1, reports[0].outcome.Pages)
}

func TestRejectedUploadLandsInFailed(t *testing.T) {
	layout := newLayout(t)
	capture := &uploadCapture{}
	server := httptest.NewServer(capture.handler(t, http.StatusNotFound))
	defer server.Close()

	testsupport.WriteJob(t, layout.Incoming(), "job-2-100", ".pdf", "Missing section", testsupport.BuildPDF("body text"))
	client := onenote.NewClient(onenote.TokenFunc(func(context.Context) (string, error) { return "t", nil }), onenote.WithBaseURL(server.URL))
	pipeline := ingest.NewPipeline(extract.New(extract.ModeText), client, onenote.Target{SectionID: "gone"})
	reporter := &stubReporter{}
	stager := ingest.NewStager(layout, pipeline, ingest.WithReporter(reporter))

	jobs, err := stager.Scan(context.Background())
	require.NoError(t, err)
	stager.Dispatch(jobs[0])
	stager.Wait()

	assert.ElementsMatch(t, []string{"job-2-100.pdf", "job-2-100.json"}, listNames(t, layout.Failed()))
	require.Len(t, reporter.all(), 1)
	assert.ErrorIs(t, reporter.all()[0].err, services.ErrUpload)
}

type fakeExtractor struct {
	prepareErr error
	extractErr error
	content    extract.Content
	cleaned    bool
}

func (f *fakeExtractor) Prepare(_ context.Context, path, title string) (extract.Source, func(), error) {
	if f.prepareErr != nil {
		return extract.Source{}, func() {}, f.prepareErr
	}
	return extract.Source{Path: path, Title: title}, func() { f.cleaned = true }, nil
}

func (f *fakeExtractor) Extract(_ context.Context, src extract.Source) (extract.Content, error) {
	if f.extractErr != nil {
		return extract.Content{}, f.extractErr
	}
	c := f.content
	c.Title = src.Title
	return c, nil
}

func (f *fakeExtractor) BuildDocument(c extract.Content) (string, error) {
	return "<html><title>" + c.Title + "</title>" + c.Body + "</html>", nil
}

type fakeUploader struct {
	calls  int
	target onenote.Target
	page   onenote.Page
	err    error
}

func (f *fakeUploader) Upload(_ context.Context, target onenote.Target, page onenote.Page) (onenote.Result, error) {
	f.calls++
	f.target = target
	f.page = page
	if f.err != nil {
		return onenote.Result{}, f.err
	}
	return onenote.Result{PageID: "p"}, nil
}

func stagedJob(title string) ingest.Job {
	return ingest.Job{
		Stem:     "job-3-1",
		Document: "/queue/Processing/job-3-1.pdf",
		Sidecar:  "/queue/Processing/job-3-1.json",
		Dir:      ingest.StateProcessing,
		Meta:     jobmeta.Metadata{File: "job-3-1.pdf", Title: title, User: "u", Job: "3"},
	}
}

func TestPipelineAppendSendsFragmentOnly(t *testing.T) {
	ex := &fakeExtractor{content: extract.Content{Body: "<div>body</div>", Parts: []extract.ContentPart{{Token: "img-1-1"}}}}
	up := &fakeUploader{}
	pipeline := ingest.NewPipeline(ex, up, onenote.Target{PageID: "existing"})

	outcome, err := pipeline.Run(context.Background(), stagedJob("Notes"))
	require.NoError(t, err)
	assert.Equal(t, 1, up.calls)
	assert.Equal(t, "existing", up.target.PageID)
	assert.Empty(t, up.page.Document)
	assert.Equal(t, "<div>body</div>", up.page.Fragment)
	assert.Len(t, up.page.Parts, 1)
	assert.Equal(t, 1, outcome.Parts)
	assert.True(t, ex.cleaned)
	assert.NotEmpty(t, outcome.CorrelationID)
	assert.False(t, outcome.FinishedAt.Before(outcome.StartedAt))
}

func TestPipelineCreateUsesStemWhenTitleEmpty(t *testing.T) {
	ex := &fakeExtractor{content: extract.Content{Body: "<p>x</p>"}}
	up := &fakeUploader{}
	pipeline := ingest.NewPipeline(ex, up, onenote.Target{SectionID: "s"})

	_, err := pipeline.Run(context.Background(), stagedJob(""))
	require.NoError(t, err)
	assert.Contains(t, up.page.Document, "<title>job-3-1</title>")
}

func TestPipelineStopsAtFirstFailure(t *testing.T) {
	convErr := services.Wrap(services.ErrConversion, "prepare", "gs", "exit 1", nil)
	up := &fakeUploader{}
	_, err := ingest.NewPipeline(&fakeExtractor{prepareErr: convErr}, up, onenote.Target{}).Run(context.Background(), stagedJob("t"))
	assert.ErrorIs(t, err, services.ErrConversion)
	assert.Zero(t, up.calls)

	extErr := services.Wrap(services.ErrExtraction, "extract", "text", "no text", nil)
	_, err = ingest.NewPipeline(&fakeExtractor{extractErr: extErr}, up, onenote.Target{}).Run(context.Background(), stagedJob("t"))
	assert.ErrorIs(t, err, services.ErrExtraction)
	assert.Zero(t, up.calls)

	authErr := services.Wrap(services.ErrAuthentication, "auth", "token", "no presenter", nil)
	up.err = authErr
	_, err = ingest.NewPipeline(&fakeExtractor{}, up, onenote.Target{}).Run(context.Background(), stagedJob("t"))
	assert.ErrorIs(t, err, services.ErrAuthentication)
}

type memoryHistory struct {
	entries []history.Entry
}

func (m *memoryHistory) Record(_ context.Context, e history.Entry) (int64, error) {
	m.entries = append(m.entries, e)
	return int64(len(m.entries)), nil
}

type recordingNotifier struct {
	uploaded []notifications.Job
	failed   []notifications.Job
}

func (r *recordingNotifier) NotifyJobUploaded(_ context.Context, job notifications.Job) error {
	r.uploaded = append(r.uploaded, job)
	return nil
}

func (r *recordingNotifier) NotifyJobFailed(_ context.Context, job notifications.Job) error {
	r.failed = append(r.failed, job)
	return nil
}

func (r *recordingNotifier) NotifyError(context.Context, error, string) error { return nil }
func (r *recordingNotifier) TestNotification(context.Context) error           { return nil }

func TestJournalRecordsOutcomes(t *testing.T) {
	store := &memoryHistory{}
	notifier := &recordingNotifier{}
	journal := ingest.NewJournal(store, notifier, nil)
	now := time.Now()

	job := stagedJob("Invoice")
	journal.Report(context.Background(), job, ingest.Outcome{CorrelationID: "c1", PageID: "p1", WebURL: "u1", StartedAt: now, FinishedAt: now}, nil)
	journal.Report(context.Background(), job, ingest.Outcome{CorrelationID: "c2"}, services.Wrap(services.ErrUpload, "upload", "", "status 500", nil))

	require.Len(t, store.entries, 2)
	assert.Equal(t, history.StatusDone, store.entries[0].Status)
	assert.Equal(t, "p1", store.entries[0].PageID)
	assert.Equal(t, "u", store.entries[0].User)
	assert.Equal(t, "c1", store.entries[0].CorrelationID)
	assert.Equal(t, history.StatusFailed, store.entries[1].Status)
	assert.Equal(t, "upload", store.entries[1].ErrorKind)
	assert.Contains(t, store.entries[1].ErrorMessage, "status 500")

	require.Len(t, notifier.uploaded, 1)
	assert.Equal(t, "u1", notifier.uploaded[0].WebURL)
	require.Len(t, notifier.failed, 1)
	assert.Equal(t, "upload", notifier.failed[0].ErrorKind)
}

func TestSubmitWritesPairLikeSpooler(t *testing.T) {
	layout := ingest.Layout{Root: filepath.Join(t.TempDir(), "queue")}
	now := time.Unix(1700000000, 0)

	job, err := ingest.Submit(layout, ingest.SubmitRequest{Data: []byte("%!PS-Adobe-3.0\nshowpage\n"), Title: "Quote \"A\"", User: "bob", Job: "17", Now: now})
	require.NoError(t, err)
	assert.Equal(t, "job-17-1700000000", job.Stem)
	assert.Equal(t, ".ps", filepath.Ext(job.Document))
	assert.True(t, filepath.IsAbs(job.Document))

	meta, err := jobmeta.DecodeFile(job.Sidecar)
	require.NoError(t, err)
	assert.Equal(t, job.Document, meta.File)
	assert.Equal(t, "Quote \"A\"", meta.Title)
	assert.Equal(t, "17", meta.Job)

	second, err := ingest.Submit(layout, ingest.SubmitRequest{Data: []byte("%PDF-1.4"), Job: "17", Now: now})
	require.NoError(t, err)
	assert.Equal(t, "job-17-1700000000-1", second.Stem)
	assert.Equal(t, ".pdf", filepath.Ext(second.Document))

	names := listNames(t, layout.Incoming())
	assert.ElementsMatch(t, []string{"job-17-1700000000.ps", "job-17-1700000000.json", "job-17-1700000000-1.pdf", "job-17-1700000000-1.json"}, names)

	unsafe, err := ingest.Submit(layout, ingest.SubmitRequest{Data: []byte("%PDF-1.4"), Job: "../evil", Now: now})
	require.NoError(t, err)
	assert.Equal(t, "job-evil-1700000000", unsafe.Stem)
	assert.Equal(t, layout.Incoming(), filepath.Dir(unsafe.Document))

	_, err = ingest.Submit(layout, ingest.SubmitRequest{})
	assert.Error(t, err)
	_, statErr := os.Stat(layout.Failed())
	assert.NoError(t, statErr)
}

func TestSniffExtension(t *testing.T) {
	assert.Equal(t, ".ps", ingest.SniffExtension([]byte("%!PS-Adobe")))
	assert.Equal(t, ".pdf", ingest.SniffExtension([]byte("%PDF-1.7")))
	assert.Equal(t, ".pdf", ingest.SniffExtension([]byte("garbage")))
}
