// Package extract turns uploaded document bytes into ordered raw text segments.
//
// One segment is produced per logical unit of the format: a spreadsheet row,
// a PDF page, a word-processor paragraph, or a blank-line separated block of
// plain text. Segments are returned untrimmed; cleaning is the chunker's job.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/supportdesk/internal/domain"
)

// Format is the extraction strategy selected for a document.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatText Format = "text"
)

var extensionFormats = map[string]Format{
	".csv":  FormatCSV,
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
}

// DetectFormat picks a format from the filename extension. Files without an
// extension are sniffed for PDF and ZIP signatures; everything else is text.
func DetectFormat(filename string, data []byte) Format {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if f, ok := extensionFormats[ext]; ok {
		return f
	}
	if ext == "" {
		switch {
		case bytes.HasPrefix(data, []byte("%PDF-")):
			return FormatPDF
		case bytes.HasPrefix(data, []byte("PK\x03\x04")) && bytes.Contains(data, []byte("word/document.xml")):
			return FormatDOCX
		}
	}
	return FormatText
}

// Extractor converts a document into raw text segments.
type Extractor struct {
	// MaxSheetRows caps rows read per spreadsheet sheet. Zero means no cap.
	MaxSheetRows int
}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract dispatches on the detected format. Any decode or parse failure is
// returned as an EXTRACTION_ERROR naming the file and format.
func (e *Extractor) Extract(data []byte, filename string) ([]string, error) {
	format := DetectFormat(filename, data)

	var (
		segments []string
		err      error
	)
	switch format {
	case FormatCSV:
		segments, err = extractCSV(data)
	case FormatXLSX:
		segments, err = extractXLSX(data, e.MaxSheetRows)
	case FormatPDF:
		segments, err = extractPDF(data)
	case FormatDOCX:
		segments, err = extractDOCX(data)
	default:
		segments, err = extractText(data)
	}
	if err != nil {
		return nil, domain.ExtractionError(fmt.Sprintf("failed to extract %s as %s", filename, format), err)
	}
	return segments, nil
}
