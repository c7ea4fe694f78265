package testsupport

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// WriteFile writes data to path, creating parent directories.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteJob drops a document and its sidecar into dir using the stem as file name.
func WriteJob(t testing.TB, dir, stem, ext, title string, document []byte) (string, string) {
	t.Helper()
	docPath := filepath.Join(dir, stem+ext)
	sidecar := filepath.Join(dir, stem+".json")
	WriteFile(t, docPath, document)
	job := strings.TrimPrefix(stem, "job-")
	if idx := strings.IndexByte(job, '-'); idx >= 0 {
		job = job[:idx]
	}
	payload := `{"file":` + strconv.Quote(stem+ext) + `,"title":` + strconv.Quote(title) +
		`,"user":"tester","job":` + strconv.Quote(job) + `}`
	WriteFile(t, sidecar, []byte(payload))
	return docPath, sidecar
}

// WritePDF writes a minimal PDF with one page per entry of pages. Each entry
// becomes one shown text line on its page; an empty entry yields a blank page.
func WritePDF(t testing.TB, path string, pages ...string) {
	t.Helper()
	WriteFile(t, path, BuildPDF(pages...))
}

// BuildPDF returns the bytes of a PDF with correct xref offsets. Object 1 is
// the catalog, 2 the page tree, 3 the font, then a page and content stream
// pair per page.
func BuildPDF(pages ...string) []byte {
	if len(pages) == 0 {
		pages = []string{""}
	}
	objects := make([]string, 0, 3+len(pages)*2)
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, strconv.Itoa(4+i*2)+" 0 R")
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids ["+strings.Join(kids, " ")+"] /Count "+strconv.Itoa(len(pages))+" >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		contentNr := 5 + i*2
		stream := ""
		if text != "" {
			escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
			stream = "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"
		}
		objects = append(objects,
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents "+strconv.Itoa(contentNr)+
				" 0 R /Resources << /Font << /F1 3 0 R >> >> >>",
			PDFStream(stream),
		)
	}
	return BuildPDFObjects(objects...)
}

// BuildPDFObjects lays out objects as numbered indirect objects starting at 1
// and appends an xref table and a trailer whose root is object 1.
func BuildPDFObjects(objects ...string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = b.Len()
		b.WriteString(strconv.Itoa(i+1) + " 0 obj\n" + obj + "\nendobj\n")
	}
	xref := b.Len()
	size := strconv.Itoa(len(objects) + 1)
	b.WriteString("xref\n0 " + size + "\n0000000000 65535 f \n")
	for _, off := range offsets {
		b.WriteString(padOffset(off) + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + size + " /Root 1 0 R >>\nstartxref\n" + strconv.Itoa(xref) + "\n%%EOF\n")
	return []byte(b.String())
}

// PDFStream wraps content in an unfiltered stream object body.
func PDFStream(content string) string {
	return "<< /Length " + strconv.Itoa(len(content)) + " >>\nstream\n" + content + "\nendstream"
}

func padOffset(n int) string {
	s := strconv.Itoa(n)
	return strings.Repeat("0", 10-len(s)) + s
}
