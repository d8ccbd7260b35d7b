package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewJobErrorTruncation(t *testing.T) {
	tests := []struct {
		name    string
		message string
		wantLen int
	}{
		{
			name:    "short message untouched",
			message: "queue unavailable",
			wantLen: len("queue unavailable"),
		},
		{
			name:    "ascii truncated to the limit",
			message: strings.Repeat("x", 300),
			wantLen: 200,
		},
		{
			name: "multibyte rune not split at the limit",
			// 199 ascii bytes followed by a 3-byte rune straddling byte 200.
			message: strings.Repeat("x", 199) + "€" + strings.Repeat("y", 100),
			wantLen: 199,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobErr := NewJobError(ErrCodeServiceUnavailable, tt.message)
			if len(jobErr.Message) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(jobErr.Message), tt.wantLen)
			}
			if !utf8.ValidString(jobErr.Message) {
				t.Errorf("message is not valid UTF-8: %q", jobErr.Message)
			}
		})
	}
}
