package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lad75020/SendToOneNote/internal/fileutil"
	"github.com/lad75020/SendToOneNote/internal/jobmeta"
)

// SubmitRequest describes a document handed to the queue by a producer.
type SubmitRequest struct {
	Data  []byte
	Title string
	User  string
	Job   string
	Now   time.Time
}

// SniffExtension picks the queue extension from the document's magic bytes.
// Unknown content is queued as PDF.
func SniffExtension(data []byte) string {
	if bytes.HasPrefix(data, []byte("%!PS")) {
		return ".ps"
	}
	return ".pdf"
}

// Submit writes a job into Incoming the way the print spooler does: the
// document first, then the sidecar, each through a temp file and rename so a
// scan never sees a partial file.
func Submit(layout Layout, req SubmitRequest) (Job, error) {
	if len(req.Data) == 0 {
		return Job{}, errors.New("submit: document is empty")
	}
	if err := layout.EnsureLayout(); err != nil {
		return Job{}, err
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	jobID := fileutil.SanitizeToken(req.Job, "0")
	ext := SniffExtension(req.Data)

	base := fmt.Sprintf("job-%s-%d", jobID, now.Unix())
	stem := base
	for i := 1; ; i++ {
		if !pairExists(layout, stem) {
			break
		}
		stem = base + "-" + strconv.Itoa(i)
	}

	doc := filepath.Join(layout.Incoming(), stem+ext)
	if abs, err := filepath.Abs(doc); err == nil {
		doc = abs
	}
	sidecar := filepath.Join(layout.Incoming(), SidecarName(stem))
	meta := jobmeta.Metadata{File: doc, Title: req.Title, User: req.User, Job: jobID}
	encoded, err := jobmeta.Encode(meta)
	if err != nil {
		return Job{}, err
	}

	if err := fileutil.WriteFileAtomic(doc, req.Data, 0o644); err != nil {
		return Job{}, fmt.Errorf("write document: %w", err)
	}
	if err := fileutil.WriteFileAtomic(sidecar, encoded, 0o644); err != nil {
		return Job{}, fmt.Errorf("write sidecar: %w", err)
	}
	return Job{Stem: stem, Document: doc, Sidecar: sidecar, Dir: StateIncoming, Meta: meta}, nil
}

func pairExists(layout Layout, stem string) bool {
	for _, state := range States {
		dir := layout.Dir(state)
		for _, name := range []string{stem + ".pdf", stem + ".ps", SidecarName(stem)} {
			if _, err := os.Lstat(filepath.Join(dir, name)); err == nil {
				return true
			}
		}
	}
	return false
}
