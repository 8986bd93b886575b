// Package tool holds the closed catalog of PDF tools offered by the front-end
// together with their per-tool option sets.
package tool

import (
	"fmt"
	"strings"
)

// Key identifies one supported PDF operation.
type Key string

const (
	Merge      Key = "merge"
	Split      Key = "split"
	Compress   Key = "compress"
	ImageToPDF Key = "image-to-pdf"
	PDFToImage Key = "pdf-to-image"
	Unlock     Key = "unlock"
	Watermark  Key = "watermark"
)

const (
	fieldFiles = "files"
	fieldFile  = "file"

	acceptPDF    = "application/pdf"
	acceptImages = "image/*"
)

// Descriptor is the static configuration of a tool: what it accepts and where
// its submissions go.
type Descriptor struct {
	Key         Key    `json:"key"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Accept      string `json:"accept"`
	Multiple    bool   `json:"multiple"`
	Endpoint    string `json:"endpoint"`

	matcher *Matcher
}

var catalog = []Descriptor{
	{Key: Merge, Title: "Merge PDF", Description: "Combine multiple PDFs into one", Accept: acceptPDF, Multiple: true, Endpoint: "/api/merge"},
	{Key: Split, Title: "Split PDF", Description: "Extract or split by page range", Accept: acceptPDF, Endpoint: "/api/split"},
	{Key: Compress, Title: "Compress PDF", Description: "Reduce file size with smart compression", Accept: acceptPDF, Endpoint: "/api/compress"},
	{Key: ImageToPDF, Title: "Image to PDF", Description: "Convert JPG/PNG to PDF", Accept: acceptImages, Multiple: true, Endpoint: "/api/image-to-pdf"},
	{Key: PDFToImage, Title: "PDF to Image", Description: "Export PDF pages to PNG", Accept: acceptPDF, Endpoint: "/api/pdf-to-image"},
	{Key: Unlock, Title: "Unlock PDF", Description: "Remove password protection", Accept: acceptPDF, Endpoint: "/api/unlock"},
	{Key: Watermark, Title: "Watermark Tool", Description: "Add text watermark to pages", Accept: acceptPDF, Endpoint: "/api/watermark"},
}

func init() {
	for i := range catalog {
		m, err := CompileAccept(catalog[i].Accept)
		if err != nil {
			panic(fmt.Sprintf("tool %s: %v", catalog[i].Key, err))
		}
		catalog[i].matcher = m
	}
}

// Catalog returns every tool in display order.
func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a tool by key.
func Lookup(key string) (Descriptor, error) {
	k := Key(strings.ToLower(strings.TrimSpace(key)))
	for _, d := range catalog {
		if d.Key == k {
			return d, nil
		}
	}
	return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownTool, key)
}

// FileField is the multipart field name that carries uploaded files.
func (d Descriptor) FileField() string {
	if d.Multiple {
		return fieldFiles
	}
	return fieldFile
}

// Accepts reports whether a file with the given name and MIME type passes the
// descriptor's accept filter.
func (d Descriptor) Accepts(name, contentType string) bool {
	m := d.matcher
	if m == nil {
		compiled, err := CompileAccept(d.Accept)
		if err != nil {
			return false
		}
		m = compiled
	}
	return m.Match(name, contentType)
}
