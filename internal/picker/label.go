package picker

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
)

const ellipsis = "…"

// displayLabel renders an option name on a single row of at most maxWidth
// columns (0 means unlimited). Escape sequences are removed and other
// control characters become spaces so a record field cannot move the cursor.
func displayLabel(s string, maxWidth int) string {
	s = ansi.Strip(strings.ToValidUTF8(s, "�"))
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	if maxWidth > 0 && runewidth.StringWidth(s) > maxWidth {
		s = truncateMiddle(s, maxWidth)
	}
	return s
}

// truncateMiddle keeps the head and tail of s around an ellipsis. Wide runes
// never straddle the cut.
func truncateMiddle(s string, width int) string {
	if width < 3 {
		return runewidth.Truncate(s, width, "")
	}
	head := runewidth.Truncate(s, width/2, "")

	budget := (width - 1) / 2
	runes := []rune(s)
	start := len(runes)
	for start > 0 {
		w := runewidth.RuneWidth(runes[start-1])
		if w > budget {
			break
		}
		budget -= w
		start--
	}
	return head + ellipsis + string(runes[start:])
}
