package utils

import "testing"

func TestCleanCandidate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"coolname", "coolname"},
		{" <@coolname> ", "coolname"},
		{"**cool.name**", "cool.name"},
		{"`abc`", "abc"},
		{"<@!&>", ""},
	}
	for _, tt := range tests {
		if got := CleanCandidate(tt.in); got != tt.want {
			t.Errorf("CleanCandidate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := SanitizeInput("4c; DROP"); got != "4c DROP" {
		t.Errorf("SanitizeInput = %q", got)
	}
}
