package gateway

import "strings"

// SplitMessage breaks text into chunks of at most limit bytes, preferring
// to cut at the last newline, then the last space, and only hard-cutting
// when a chunk has neither.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndexByte(text[:limit], '\n')
		if cut <= 0 {
			cut = strings.LastIndexByte(text[:limit], ' ')
		}
		if cut <= 0 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n ")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// Truncate shortens a string to maxLen, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
