package ingest

import (
	"path/filepath"

	"github.com/lad75020/SendToOneNote/internal/jobmeta"
)

// Job is a document and its sidecar, identified by their shared stem.
type Job struct {
	Stem     string
	Document string
	Sidecar  string
	Dir      State
	Meta     jobmeta.Metadata
}

// DocumentName returns the document's file name.
func (j Job) DocumentName() string {
	return filepath.Base(j.Document)
}

// SidecarFileName returns the sidecar's file name.
func (j Job) SidecarFileName() string {
	return filepath.Base(j.Sidecar)
}

// Title returns the declared title, falling back to the stem.
func (j Job) Title() string {
	if j.Meta.Title != "" {
		return j.Meta.Title
	}
	return j.Stem
}

// relocate returns j with both paths moved into dir.
func (j Job) relocate(layout Layout, state State) Job {
	dir := layout.Dir(state)
	j.Document = filepath.Join(dir, j.DocumentName())
	j.Sidecar = filepath.Join(dir, j.SidecarFileName())
	j.Dir = state
	return j
}
