// Package document extracts plain text from uploaded contracts.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxTextBytes caps extracted text; longer documents are cut.
const MaxTextBytes = 200_000

var (
	ErrEmptyDocument = errors.New("document: no text found")
	ErrInvalidText   = errors.New("document: text is not valid UTF-8")
)

// ExtractText returns the text of a txt or pdf upload.
func ExtractText(format string, data []byte) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(format) {
	case "txt":
		text, err = plainText(data)
	case "pdf":
		text, err = pdfText(data)
	default:
		return "", fmt.Errorf("document: unsupported format %q", format)
	}
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyDocument
	}
	return Excerpt(text, MaxTextBytes), nil
}

func plainText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(data) {
		return "", ErrInvalidText
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// pdfText recovers from panics raised by the pdf reader on corrupt streams.
func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	r, openErr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if openErr != nil {
		return "", fmt.Errorf("failed to open PDF: %w", openErr)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
		if sb.Len() > MaxTextBytes {
			break
		}
	}
	return sb.String(), nil
}

// Excerpt returns at most n characters of text, never splitting a rune.
func Excerpt(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	i := 0
	for pos := range text {
		if i == n {
			return text[:pos]
		}
		i++
	}
	return text
}
