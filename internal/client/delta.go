package client

import "strings"

// Delta returns the newly-added suffix of next relative to prev. The
// running aggregate only ever grows, so the common case is an exact prefix
// match; when upstream re-normalization shifted whitespace, a trimmed
// comparison is tried before giving up and returning next whole.
func Delta(prev, next string) string {
	if prev == "" {
		return next
	}
	if next == prev {
		return ""
	}
	if strings.HasPrefix(next, prev) {
		return strings.TrimLeft(next[len(prev):], " ")
	}

	trimmedPrev := strings.TrimSpace(prev)
	trimmedNext := strings.TrimSpace(next)
	if strings.HasPrefix(trimmedNext, trimmedPrev) {
		return strings.TrimLeft(trimmedNext[len(trimmedPrev):], " ")
	}

	// The transcript was rewritten rather than extended.
	return next
}
