package onenote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/lad75020/SendToOneNote/internal/extract"
	"github.com/lad75020/SendToOneNote/internal/logging"
	"github.com/lad75020/SendToOneNote/internal/services"
)

// Target selects where an upload lands. PageID wins over SectionID.
type Target struct {
	SectionID string
	PageID    string
}

// Append reports whether the target appends to an existing page.
func (t Target) Append() bool {
	return strings.TrimSpace(t.PageID) != ""
}

func (t Target) String() string {
	switch {
	case t.Append():
		return "page " + t.PageID
	case strings.TrimSpace(t.SectionID) != "":
		return "section " + t.SectionID
	default:
		return "default section"
	}
}

// Route returns the method and API path for target.
func Route(t Target) (string, string) {
	switch {
	case t.Append():
		return http.MethodPatch, "pages/" + url.PathEscape(strings.TrimSpace(t.PageID)) + "/content"
	case strings.TrimSpace(t.SectionID) != "":
		return http.MethodPost, "sections/" + url.PathEscape(strings.TrimSpace(t.SectionID)) + "/pages"
	default:
		return http.MethodPost, "pages"
	}
}

// Page is the content to upload.
type Page struct {
	Title string
	// Document is the full HTML document used when creating a page.
	Document string
	// Fragment is the body markup appended to an existing page.
	Fragment string
	// Parts are sent as binary sections named by their token.
	Parts []extract.ContentPart
}

// Result describes the page an upload created or updated.
type Result struct {
	PageID     string
	WebURL     string
	StatusCode int
}

type patchCommand struct {
	Target  string `json:"target"`
	Action  string `json:"action"`
	Content string `json:"content"`
}

// BuildMultipart renders the request body for page. The first part is the
// HTML document (create) or the append command (append); content parts follow.
func BuildMultipart(page Page, appendMode bool) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	mainName, mainType := "Presentation", "text/html"
	mainBody := []byte(page.Document)
	if appendMode {
		mainName, mainType = "Commands", "application/json"
		cmds, err := json.Marshal([]patchCommand{{Target: "body", Action: "append", Content: page.Fragment}})
		if err != nil {
			return nil, "", err
		}
		mainBody = cmds
	}
	if err := writePart(w, mainName, mainType, mainBody); err != nil {
		return nil, "", err
	}
	for _, part := range page.Parts {
		if err := writePart(w, part.Token, part.MIMEType, part.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writePart(w *multipart.Writer, name, contentType string, data []byte) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, name))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

// Upload creates a page or appends to one according to target.
func (c *Client) Upload(ctx context.Context, target Target, page Page) (Result, error) {
	method, path := Route(target)
	body, contentType, err := BuildMultipart(page, target.Append())
	if err != nil {
		return Result{}, services.Wrap(services.ErrUpload, "upload", "build body", "", err)
	}

	resp, err := c.do(ctx, method, path, contentType, bytes.NewReader(body))
	if err != nil {
		if errors.Is(err, services.ErrAuthentication) || errors.Is(err, services.ErrConfiguration) {
			return Result{}, err
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			logging.ErrorWithContext(logging.WithContext(ctx, c.logger), "upload rejected", "upload_rejected",
				logging.Int(logging.FieldStatusCode, apiErr.StatusCode),
				logging.String(logging.FieldResponseBody, apiErr.Body),
				logging.String("target", target.String()),
				logging.String(logging.FieldErrorHint, "check the target section/page id and account permissions"),
			)
			return Result{StatusCode: apiErr.StatusCode}, services.Wrap(services.ErrUpload, "upload", method+" "+path, fmt.Sprintf("status %d", apiErr.StatusCode), err)
		}
		return Result{}, services.Wrap(services.ErrUpload, "upload", method+" "+path, "transport failure", err)
	}
	defer resp.Body.Close()

	result := Result{StatusCode: resp.StatusCode, PageID: strings.TrimSpace(target.PageID)}
	if !target.Append() {
		var created struct {
			ID    string `json:"id"`
			Links struct {
				OneNoteWebURL struct {
					Href string `json:"href"`
				} `json:"oneNoteWebUrl"`
			} `json:"links"`
		}
		if data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)); err == nil && len(data) > 0 {
			if err := json.Unmarshal(data, &created); err == nil {
				result.PageID = created.ID
				result.WebURL = created.Links.OneNoteWebURL.Href
			}
		}
	}
	logging.WithContext(ctx, c.logger).Info("page uploaded",
		logging.String("target", target.String()),
		logging.Int(logging.FieldStatusCode, resp.StatusCode),
		logging.Int("parts", len(page.Parts)),
		logging.String(logging.FieldEventType, "page_uploaded"),
	)
	return result, nil
}
