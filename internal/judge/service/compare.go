package service

import "strings"

// outputsMatch compares program output with the expected answer, ignoring
// trailing whitespace on every line and trailing blank lines.
func outputsMatch(observed, expected string) bool {
	return normalizeOutput(observed) == normalizeOutput(expected)
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\f\v")
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}
