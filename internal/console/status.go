package console

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
)

const defaultWidth = 80

// statusLine is a single self-overwriting line at the bottom of a terminal.
// Anything else written to the terminal must clear it first.
type statusLine struct {
	out     io.Writer
	width   int
	visible bool
}

func newStatusLine(out io.Writer, width int) *statusLine {
	if width <= 0 {
		width = defaultWidth
	}
	return &statusLine{out: out, width: width}
}

func (s *statusLine) draw(text string) {
	s.clear()
	fmt.Fprint(s.out, truncateToWidth(text, s.width))
	s.visible = true
}

func (s *statusLine) clear() {
	if !s.visible {
		return
	}
	fmt.Fprint(s.out, "\r\033[2K")
	s.visible = false
}

// truncateToWidth cuts s to at most width terminal cells.
func truncateToWidth(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
