package service

import "testing"

func TestOutputsMatch(t *testing.T) {
	cases := []struct {
		name     string
		observed string
		expected string
		want     bool
	}{
		{name: "exact", observed: "8", expected: "8", want: true},
		{name: "trailing newline", observed: "8\n", expected: "8", want: true},
		{name: "trailing blank lines", observed: "1 2\n\n\n", expected: "1 2", want: true},
		{name: "trailing spaces per line", observed: "a  \nb\t\n", expected: "a\nb", want: true},
		{name: "crlf", observed: "a\r\nb\r\n", expected: "a\nb", want: true},
		{name: "leading whitespace matters", observed: " 8", expected: "8", want: false},
		{name: "inner blank line matters", observed: "a\n\nb", expected: "a\nb", want: false},
		{name: "whitespace only expected", observed: "", expected: " ", want: true},
		{name: "different", observed: "0 1", expected: "1 0", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := outputsMatch(tc.observed, tc.expected); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
