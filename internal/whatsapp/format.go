package whatsapp

import (
	"regexp"
	"strings"
)

var (
	citationPattern = regexp.MustCompile(`【.*?】`)
	boldPattern     = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// FormatText adapts model output to WhatsApp markup: citation markers are
// dropped and markdown bold becomes single-asterisk bold.
func FormatText(text string) string {
	text = strings.TrimSpace(citationPattern.ReplaceAllString(text, ""))
	return boldPattern.ReplaceAllString(text, "*$1*")
}
