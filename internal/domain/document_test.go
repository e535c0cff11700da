package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocument_Kind(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want DocumentKind
	}{
		{"declared pdf", Document{MimeType: "application/pdf"}, DocumentMultiPage},
		{"declared image with params", Document{MimeType: "image/png; charset=binary"}, DocumentImage},
		{"pdf by extension", Document{Name: "sheet.PDF"}, DocumentMultiPage},
		{"jpeg by extension", Document{Name: "scan.jpeg"}, DocumentImage},
		{"unknown extension", Document{Name: "notes.docx"}, DocumentUnsupported},
		{"declared type wins", Document{Name: "scan.png", MimeType: "text/plain"}, DocumentUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.doc.Kind())
		})
	}
}

func TestExtractedDocument_Text(t *testing.T) {
	doc := ExtractedDocument{Pages: []PageText{
		{Index: 0, Text: "Q1. An algorithm is..."},
		{Index: 1, Text: PagePlaceholder(1, errors.New("model call failed")), Err: "model call failed"},
		{Index: 2, Text: "Q3. DNS maps names"},
	}}

	want := "--- Page 1 ---\n\nQ1. An algorithm is...\n\n" +
		"--- Page 2 ---\n\n[Error processing page 2: model call failed]\n\n" +
		"--- Page 3 ---\n\nQ3. DNS maps names"
	assert.Equal(t, want, doc.Text())
	assert.Len(t, doc.FailedPages(), 1)
	assert.Equal(t, 1, doc.FailedPages()[0].Index)
}

func TestExtractedDocument_TextEmpty(t *testing.T) {
	assert.Empty(t, ExtractedDocument{}.Text())
}
