package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

func extractDOCX(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx container: %w", err)
	}

	body, err := readZipFile(zr.File, "word/document.xml")
	if err != nil {
		return nil, err
	}

	paragraphs, err := docxParagraphs(body)
	if err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}

	segments := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		if strings.TrimSpace(p) == "" {
			continue
		}
		segments = append(segments, p)
	}
	return segments, nil
}

func readZipFile(files []*zip.File, target string) ([]byte, error) {
	for _, f := range files {
		if f == nil || !strings.EqualFold(strings.TrimSpace(f.Name), target) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("file not found: %s", target)
}

// docxParagraphs walks w:p elements and concatenates their w:t runs. Tabs
// and breaks inside a paragraph become whitespace.
func docxParagraphs(body []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var (
		depth  int
		inText bool
		text   strings.Builder
		out    []string
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if depth == 0 {
					text.Reset()
				}
				depth++
			case "t":
				inText = depth > 0
			case "tab":
				if depth > 0 {
					text.WriteByte('\t')
				}
			case "br", "cr":
				if depth > 0 {
					text.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 {
					out = append(out, text.String())
					text.Reset()
				}
			}
		}
	}
	return out, nil
}
