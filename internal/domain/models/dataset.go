package models

import (
	"time"

	"PowerDesk/pkg/document"
	"PowerDesk/pkg/tabular"
)

type DatasetKind string

const (
	KindMarket     DatasetKind = "market"
	KindForecast   DatasetKind = "forecast"
	KindActual     DatasetKind = "actual"
	KindRegulation DatasetKind = "regulation"
	KindTrades     DatasetKind = "trades"
	KindContract   DatasetKind = "contract"
)

// DatasetKinds lists every kind in display order.
var DatasetKinds = []DatasetKind{KindMarket, KindForecast, KindActual, KindRegulation, KindTrades, KindContract}

func (k DatasetKind) Valid() bool {
	for _, v := range DatasetKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Tabular reports whether the kind is uploaded as a spreadsheet.
func (k DatasetKind) Tabular() bool { return k != KindContract }

// Accepts reports whether files of format f can hold this kind.
func (k DatasetKind) Accepts(f tabular.Format) bool {
	if k.Tabular() {
		return f == tabular.FormatCSV || f == tabular.FormatXLSX
	}
	return f == tabular.FormatTXT || f == tabular.FormatPDF
}

// Dataset is the current upload of one kind within a session. Exactly one of
// Table and Text is set.
type Dataset struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id"`
	Kind       DatasetKind    `json:"kind"`
	Filename   string         `json:"filename"`
	Format     tabular.Format `json:"format"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Rows       int            `json:"rows"`
	Table      *tabular.Table `json:"table,omitempty"`
	Text       string         `json:"text,omitempty"`
}

// DatasetSummary is Dataset without its content plus a short preview.
type DatasetSummary struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	Kind        DatasetKind    `json:"kind"`
	Filename    string         `json:"filename"`
	Format      tabular.Format `json:"format"`
	UploadedAt  time.Time      `json:"uploaded_at"`
	Rows        int            `json:"rows"`
	Preview     *tabular.Table `json:"preview,omitempty"`
	TextPreview string         `json:"text_preview,omitempty"`
	Extracted   int            `json:"extracted_records,omitempty"`
	Skipped     int            `json:"skipped_rows,omitempty"`
}

// PreviewRows and PreviewChars bound the preview returned after an upload.
const (
	PreviewRows  = 5
	PreviewChars = 1000
)

func (d *Dataset) Summary() *DatasetSummary {
	s := &DatasetSummary{
		ID:         d.ID,
		SessionID:  d.SessionID,
		Kind:       d.Kind,
		Filename:   d.Filename,
		Format:     d.Format,
		UploadedAt: d.UploadedAt,
		Rows:       d.Rows,
	}
	if d.Table != nil {
		s.Preview = d.Table.Head(PreviewRows)
	}
	if d.Text != "" {
		s.TextPreview = document.Excerpt(d.Text, PreviewChars)
	}
	return s
}
