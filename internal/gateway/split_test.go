package gateway

import (
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{
			name:  "fits in one chunk",
			text:  "hello world",
			limit: 20,
			want:  []string{"hello world"},
		},
		{
			name:  "empty text",
			text:  "",
			limit: 10,
			want:  []string{""},
		},
		{
			name:  "prefers newline",
			text:  "first line\nsecond line",
			limit: 15,
			want:  []string{"first line", "second line"},
		},
		{
			name:  "falls back to space",
			text:  "alpha beta gamma",
			limit: 12,
			want:  []string{"alpha beta", "gamma"},
		},
		{
			name:  "hard cut without separators",
			text:  "abcdefghij",
			limit: 4,
			want:  []string{"abcd", "efgh", "ij"},
		},
		{
			name:  "zero limit returns whole text",
			text:  "anything",
			limit: 0,
			want:  []string{"anything"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitMessage() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("chunk[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSplitMessageRespectsLimit(t *testing.T) {
	text := strings.Repeat("word ", 500)
	for _, chunk := range SplitMessage(text, 100) {
		if len(chunk) > 100 {
			t.Errorf("chunk length %d exceeds limit 100", len(chunk))
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate() = %q, want unchanged", got)
	}
	if got := Truncate("a long message", 6); got != "a long..." {
		t.Errorf("Truncate() = %q, want %q", got, "a long...")
	}
}
