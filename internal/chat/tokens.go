package chat

import "strings"

// TokenCount is the cheap token proxy stored on every message: the number of
// whitespace-delimited fields in the content. Recomputed on every content write.
func TokenCount(content string) int {
	return len(strings.Fields(content))
}
