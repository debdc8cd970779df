package tabular

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forecastCSV = "\ufeffDate,Region,Forecast (MW)\n" +
	"2024-06-01,North,520\n" +
	"2024-06-01,South,610,extra\n" +
	"2024-06-02,East\n" +
	"\n" +
	"2024-06-02,West,430\n\n"

func TestParseCSV(t *testing.T) {
	tbl, err := ParseCSV([]byte(forecastCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "Region", "Forecast (MW)"}, tbl.Headers)
	require.Equal(t, 4, tbl.Len())
	assert.Equal(t, []string{"2024-06-01", "South", "610"}, tbl.Rows[1], "long rows are truncated")
	assert.Equal(t, []string{"2024-06-02", "East", ""}, tbl.Rows[2], "short rows are padded")
	assert.Equal(t, "West", tbl.Rows[3][1])
}

func TestParseCSVErrors(t *testing.T) {
	_, err := ParseCSV([]byte("  \n\n"))
	assert.True(t, errors.Is(err, ErrEmptyFile))

	_, err = ParseCSV([]byte("\ufeff"))
	assert.True(t, errors.Is(err, ErrEmptyFile))
}

func TestColumnLookupIgnoresCaseAndSeparators(t *testing.T) {
	tbl, err := ParseCSV([]byte(forecastCSV))
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.ColumnIndex("forecast_mw"))
	assert.Equal(t, 1, tbl.ColumnIndex("REGION"))
	assert.Equal(t, -1, tbl.ColumnIndex("Actual"))
	assert.Equal(t, 2, tbl.FindColumn("Forecast", "Forecast MW"))
	assert.True(t, tbl.HasColumns("date", "region"))
	assert.Equal(t, []string{"North", "South", "East", "West"}, tbl.Column("region"))
	assert.Nil(t, tbl.Column("missing"))
}

func TestHeadAndMarkdown(t *testing.T) {
	tbl, err := ParseCSV([]byte(forecastCSV))
	require.NoError(t, err)

	head := tbl.Head(2)
	assert.Equal(t, 2, head.Len())
	assert.Equal(t, 4, tbl.Head(10).Len())

	md := head.Markdown()
	lines := strings.Split(strings.TrimSpace(md), "\n")
	require.Len(t, lines, 4, "header, separator and two rows")
	assert.Equal(t, "| Date | Region | Forecast (MW) |", lines[0])
	assert.Equal(t, "|---|---|---|", lines[1])
	assert.Equal(t, "| 2024-06-01 | North | 520 |", lines[2])
}

func TestText(t *testing.T) {
	tbl := New([]string{"Region", "Price"}, [][]string{{"North", "0.12"}, {"S", "0.15"}})
	want := "Region  Price\nNorth   0.12\nS       0.15\n"
	assert.Equal(t, want, tbl.Text())
}

func TestXLSXRoundTrip(t *testing.T) {
	src := New([]string{"Region", "Price", "Volume"}, [][]string{
		{"North", "0.12", "500"},
		{"South", "0.15", "700"},
	})
	data, err := WriteXLSX(src, "Market")
	require.NoError(t, err)

	tbl, err := ParseXLSX(data)
	require.NoError(t, err)
	assert.Equal(t, src.Headers, tbl.Headers)
	assert.Equal(t, src.Rows, tbl.Rows)

	_, err = ParseXLSX(nil)
	assert.True(t, errors.Is(err, ErrEmptyFile))
}

func TestDetectFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"trades.CSV":   FormatCSV,
		"market.xlsx":  FormatXLSX,
		"ppa.txt":      FormatTXT,
		"contract.pdf": FormatPDF,
	} {
		got, err := DetectFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectFormat("notes.docx")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = Parse(FormatPDF, []byte("x"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}
