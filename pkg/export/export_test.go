package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sheet() Dataset {
	return Dataset{
		Title:   "CS-401 attendance",
		Headers: []string{"Student", "Roll", "Recorded at"},
		Rows: [][]string{
			{"Ada Lovelace", "R-17", "2024-03-04 09:00"},
			{"Alan Turing", "R-02", "2024-03-04 09:01"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("PDF")
	require.NoError(t, err)
	assert.Equal(t, FormatPDF, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "text/csv; charset=utf-8", f.ContentType())

	_, err = ParseFormat("xlsx")
	assert.Error(t, err)
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sheet())
	require.NoError(t, err)
	assert.Equal(t, "Student,Roll,Recorded at\nAda Lovelace,R-17,2024-03-04 09:00\nAlan Turing,R-02,2024-03-04 09:01\n", string(out))
}

func TestRenderRejectsRaggedRows(t *testing.T) {
	data := sheet()
	data.Rows = append(data.Rows, []string{"only one"})
	_, err := NewCSVExporter().Render(data)
	assert.Error(t, err)

	_, err = NewPDFExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	exporter := &PDFExporter{now: func() time.Time { return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC) }}
	data := sheet()
	for i := 0; i < 80; i++ {
		data.Rows = append(data.Rows, []string{"Student", "R", "2024-03-04"})
	}
	out, err := exporter.Render(data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}
