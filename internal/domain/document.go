package domain

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// DocumentKind classifies an input document for the extraction stage.
type DocumentKind string

const (
	// DocumentImage is a single scanned image; it becomes page 0.
	DocumentImage DocumentKind = "image"
	// DocumentMultiPage is a paged format that must be rendered to images first.
	DocumentMultiPage DocumentKind = "multi_page"
	// DocumentUnsupported cannot be extracted.
	DocumentUnsupported DocumentKind = "unsupported"
)

// Document is raw input bytes plus the declared type.
type Document struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// DocumentRef points at a document the reader can open. Workflow inputs
// carry the reference, so document bytes never enter workflow history.
type DocumentRef struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	MimeType string `json:"mime_type,omitempty"`
}

// DisplayName is Name, or the base of Path when Name is empty.
func (r DocumentRef) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return filepath.Base(r.Path)
}

// Kind classifies the referenced document without reading it.
func (r DocumentRef) Kind() DocumentKind {
	return Document{Name: r.DisplayName(), MimeType: r.MimeType}.Kind()
}

// Open reads the referenced document.
func (r DocumentRef) Open() (Document, error) {
	if r.Path == "" {
		return Document{}, errors.New("document path is empty")
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return Document{}, fmt.Errorf("reading document: %w", err)
	}
	return Document{Name: r.DisplayName(), MimeType: r.MimeType, Data: data}, nil
}

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// Kind resolves the document kind from the MIME type, falling back to the
// file extension of Name.
func (d Document) Kind() DocumentKind {
	mt := d.ResolvedMimeType()
	switch {
	case mt == "application/pdf":
		return DocumentMultiPage
	case strings.HasPrefix(mt, "image/"):
		return DocumentImage
	default:
		return DocumentUnsupported
	}
}

// ResolvedMimeType returns the declared MIME type without parameters, or one
// derived from the file extension when none was declared.
func (d Document) ResolvedMimeType() string {
	if d.MimeType != "" {
		if mt, _, err := mime.ParseMediaType(d.MimeType); err == nil {
			return strings.ToLower(mt)
		}
		return strings.ToLower(d.MimeType)
	}
	ext := strings.ToLower(filepath.Ext(d.Name))
	if ext == ".pdf" {
		return "application/pdf"
	}
	return imageExtensions[ext]
}

// Page is one unit of extraction input: a supplied image or a page rendered
// from a multi-page document. Index is the sole ordering key.
type Page struct {
	Index    int    `json:"index"`
	MimeType string `json:"mime_type"`
	Path     string `json:"path"`
}

// PageText is the extraction output for one page. Err is set when the page
// could not be read; Text then holds the placeholder.
type PageText struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Err   string `json:"error,omitempty"`
}

// PageHeader marks the start of a page in assembled document text. Pages are
// numbered from 1 for readers.
func PageHeader(index int) string {
	return fmt.Sprintf("--- Page %d ---", index+1)
}

// PagePlaceholder is the text substituted for a page whose OCR failed.
func PagePlaceholder(index int, cause error) string {
	return fmt.Sprintf("[Error processing page %d: %v]", index+1, cause)
}

// ExtractedDocument is the page-ordered extraction result.
type ExtractedDocument struct {
	Pages []PageText `json:"pages"`
}

// Text concatenates pages in slice order, each preceded by its header.
// Extraction always stores pages sorted by index.
func (d ExtractedDocument) Text() string {
	var b strings.Builder
	for _, p := range d.Pages {
		b.WriteString("\n\n")
		b.WriteString(PageHeader(p.Index))
		b.WriteString("\n\n")
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// FailedPages lists the errors of pages that fell back to a placeholder.
func (d ExtractedDocument) FailedPages() []PageText {
	var failed []PageText
	for _, p := range d.Pages {
		if p.Err != "" {
			failed = append(failed, p)
		}
	}
	return failed
}
