package domain

import "strings"

// WrapWidth is the display width failing-assertion messages are wrapped to.
const WrapWidth = 80

// Wrap breaks s into lines of at most width characters, splitting at
// whitespace only. A single word longer than width is kept on its own line
// unsplit. Whitespace runs collapse to single spaces.
func Wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
