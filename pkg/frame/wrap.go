package frame

import "strings"

// Wrap breaks text into lines no wider than maxWidth, filling each line
// greedily word by word. A word wider than maxWidth keeps a line of its own
// and is never split. At most maxLines lines are returned; words past the
// cap are dropped.
func Wrap(measure func(string) float64, text string, maxWidth float64, maxLines int) []string {
	if maxLines <= 0 {
		return nil
	}
	var lines []string
	var line string
	for _, word := range strings.Fields(text) {
		if line == "" {
			line = word
			continue
		}
		candidate := line + " " + word
		if measure(candidate) <= maxWidth {
			line = candidate
			continue
		}
		lines = append(lines, line)
		if len(lines) == maxLines {
			return lines
		}
		line = word
	}
	if line != "" && len(lines) < maxLines {
		lines = append(lines, line)
	}
	return lines
}
