package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

const defaultWidth = 80

// Width returns the width of the terminal on stdout, 80 when it is not a
// terminal.
func Width() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

func PrintRight(text string) {
	// Set padding.
	padding := Width() - len(text)
	if padding < 0 {
		padding = 0
	}

	fmt.Fprintf(os.Stderr, "\r%s%s", spaces(padding), text)
}

func spaces(n int) string {
	return fmt.Sprintf("%*s", n, "")
}

func ProgressBar(percent int, width int) string {
	percent = max(0, min(percent, 100))
	filled := (percent * width) / 100
	return fmt.Sprintf("%s%s",
		strings.Repeat("█", filled),
		strings.Repeat(" ", width-filled),
	)
}

// Stars returns a bar of width stars filled in proportion to v over top.
func Stars(v, top uint64, width int) string {
	filled := 0
	if top > 0 {
		filled = int(float64(v) / float64(top) * float64(width))
	}
	filled = min(filled, width)
	return strings.Repeat("*", filled) + strings.Repeat(" ", width-filled)
}
