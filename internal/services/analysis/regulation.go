package analysis

import (
	"strings"

	"PowerDesk/pkg/tabular"
)

const (
	bulletinLimit   = 5
	regulationLimit = 10
)

// RegulationDigest is the text sent to the model for the regulatory view.
type RegulationDigest struct {
	// Bulletins is set when the sheet has a Bulletin column.
	Bulletins []string `json:"bulletins,omitempty"`
	Rows      int      `json:"rows"`
	Text      string   `json:"-"`
}

// DigestRegulation takes the first five non-empty bulletins, or the first
// ten rows when the sheet has no Bulletin column.
func DigestRegulation(t *tabular.Table) RegulationDigest {
	d := RegulationDigest{Rows: t.Len()}
	col := findColumn(t, []string{"bulletin", "bulletins"}, "bulletin")
	if col < 0 {
		d.Text = t.Head(regulationLimit).Markdown()
		return d
	}
	for _, row := range t.Rows {
		if b := strings.TrimSpace(cell(row, col)); b != "" {
			d.Bulletins = append(d.Bulletins, b)
			if len(d.Bulletins) == bulletinLimit {
				break
			}
		}
	}
	d.Text = strings.Join(d.Bulletins, "\n")
	return d
}
