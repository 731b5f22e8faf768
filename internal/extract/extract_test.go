package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		data     []byte
		expected Format
	}{
		{"faq.csv", nil, FormatCSV},
		{"Prices.XLSX", nil, FormatXLSX},
		{"manual.pdf", nil, FormatPDF},
		{"policy.docx", nil, FormatDOCX},
		{"notes.txt", nil, FormatText},
		{"notes.md", nil, FormatText},
		{"blob", []byte("%PDF-1.7 ..."), FormatPDF},
		{"blob", []byte("hello"), FormatText},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectFormat(tt.filename, tt.data))
		})
	}
}

func TestExtract_CSV(t *testing.T) {
	data := []byte("question,answer\nHow do I return?,Within 30 days\n\nShipping?,Free over $50\n")

	segments, err := NewExtractor().Extract(data, "faq.csv")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"question: How do I return? | answer: Within 30 days",
		"question: Shipping? | answer: Free over $50",
	}, segments)
}

func TestExtract_CSVRaggedRows(t *testing.T) {
	data := []byte("a,b\n1\n2,3,4\n")

	segments, err := NewExtractor().Extract(data, "ragged.csv")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"a: 1 | b: ",
		"a: 2 | b: 3 | column_3: 4",
	}, segments)
}

func TestExtract_CSVHeaderOnly(t *testing.T) {
	segments, err := NewExtractor().Extract([]byte("a,b\n"), "empty.csv")

	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestExtract_CSVMalformed(t *testing.T) {
	_, err := NewExtractor().Extract([]byte("a,b\n\"unterminated,1\n"), "bad.csv")

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeExtraction))
	assert.Contains(t, err.Error(), "bad.csv")
}

func TestExtract_XLSX(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"sku", "price"},
		{"A-1", 10},
		{"B-2", 12.5},
	})

	segments, err := NewExtractor().Extract(data, "prices.xlsx")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"sku: A-1 | price: 10",
		"sku: B-2 | price: 12.5",
	}, segments)
}

func TestExtract_XLSXCorrupt(t *testing.T) {
	_, err := NewExtractor().Extract([]byte("not a workbook"), "prices.xlsx")

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeExtraction))
}

func TestExtract_DOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Returns policy</w:t></w:r></w:p>
    <w:p><w:r><w:t xml:space="preserve">   </w:t></w:r></w:p>
    <w:p><w:r><w:t>Items can be </w:t></w:r><w:r><w:t>returned within 30 days.</w:t></w:r></w:p>
    <w:p></w:p>
  </w:body>
</w:document>`

	segments, err := NewExtractor().Extract(buildDocx(t, doc), "policy.docx")

	require.NoError(t, err)
	assert.Equal(t, []string{"Returns policy", "Items can be returned within 30 days."}, segments)
}

func TestExtract_DOCXMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("other.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = NewExtractor().Extract(buf.Bytes(), "policy.docx")

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeExtraction))
}

func TestExtract_PDFPages(t *testing.T) {
	data := testutil.BuildPDF("Hello refund policy", "", "Shipping takes five days")

	segments, err := NewExtractor().Extract(data, "policy.pdf")

	require.NoError(t, err)
	require.Len(t, segments, 3)
	assert.Equal(t, "Hello refund policy", strings.TrimSpace(segments[0]))
	assert.Empty(t, strings.TrimSpace(segments[1]))
	assert.Equal(t, "Shipping takes five days", strings.TrimSpace(segments[2]))
}

func TestExtract_PDFMalformed(t *testing.T) {
	_, err := NewExtractor().Extract([]byte("%PDF-1.4 garbage"), "manual.pdf")

	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodeExtraction))
}

func TestExtract_TextSplitsOnBlankLines(t *testing.T) {
	data := []byte("First block\nstill first\r\n\r\nSecond block\n\n\n\nThird")

	segments, err := NewExtractor().Extract(data, "notes.txt")

	require.NoError(t, err)
	assert.Equal(t, []string{"First block\nstill first", "Second block", "", "Third"}, segments)
}

func TestExtract_TextEmpty(t *testing.T) {
	segments, err := NewExtractor().Extract([]byte{}, "empty.txt")

	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestExtract_TextInvalidUTF8(t *testing.T) {
	_, err := NewExtractor().Extract([]byte{0xff, 0xfe, 0xfd}, "binary.txt")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidEncoding))
	assert.True(t, domain.IsCode(err, domain.ErrCodeExtraction))
}
