package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/supportdesk/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// extractText splits UTF-8 text on blank-line boundaries.
func extractText(data []byte) ([]string, error) {
	data = stripBOM(data)
	if !utf8.Valid(data) {
		return nil, domain.ErrInvalidEncoding
	}
	if len(data) == 0 {
		return []string{}, nil
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.Split(text, "\n\n"), nil
}
