// Package pdfutil reads PDFs with ledongthuc/pdf.
package pdfutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	pdf "github.com/ledongthuc/pdf"
)

// ErrNotPDF is returned for input that does not parse as a PDF document.
var ErrNotPDF = errors.New("not a readable pdf")

// Text extracts the plain text of every page of an in-memory PDF.
func Text(data []byte) (string, error) {
	r, err := open(data)
	if err != nil {
		return "", err
	}
	return plainText(r)
}

// TextFile extracts the plain text of the PDF at path.
func TextFile(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return plainText(r)
}

// Check verifies data is a PDF with at least one page and returns the page
// count.
func Check(data []byte) (pages int, err error) {
	r, err := open(data)
	if err != nil {
		return 0, err
	}
	defer func() {
		if p := recover(); p != nil {
			pages, err = 0, fmt.Errorf("%w: %v", ErrNotPDF, p)
		}
	}()
	n := r.NumPage()
	if n < 1 {
		return 0, fmt.Errorf("%w: no pages", ErrNotPDF)
	}
	return n, nil
}

func open(data []byte) (r *pdf.Reader, err error) {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrNotPDF)
	}
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, fmt.Errorf("%w: %v", ErrNotPDF, p)
		}
	}()
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	return r, nil
}

func plainText(r *pdf.Reader) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("extract pdf text: %v", p)
		}
	}()
	rc, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}
