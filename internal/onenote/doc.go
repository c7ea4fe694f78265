// Package onenote talks to the notebook REST API: multipart page creation and
// append, plus paginated listing of notebooks, sections and pages.
package onenote
