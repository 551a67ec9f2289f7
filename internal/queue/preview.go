package queue

import (
	"fmt"
	"strings"
	"time"
)

const previewHeader = "[MESSAGES AWAITING YOUR ATTENTION IN THIS CHANNEL]:"

// DefaultPreviewMax is how many queued messages a preview shows before
// collapsing the rest into an overflow note.
const DefaultPreviewMax = 3

// Preview formats pending items for inclusion in a prompt. An empty
// backlog yields an empty string so the block is omitted entirely.
// aliasOf maps an author id to a display name; when it returns "" the
// item's own author name is used.
func Preview(items []Item, aliasOf func(authorID string) string, loc *time.Location, max int) string {
	if len(items) == 0 {
		return ""
	}
	if max <= 0 {
		max = DefaultPreviewMax
	}
	if loc == nil {
		loc = time.UTC
	}

	lines := []string{previewHeader}
	shown := items
	if len(shown) > max {
		shown = shown[:max]
	}
	for _, item := range shown {
		name := ""
		if aliasOf != nil {
			name = aliasOf(item.AuthorID)
		}
		if name == "" {
			name = item.AuthorName
		}
		ts := item.Timestamp.In(loc).Format(time.RFC3339)
		lines = append(lines, fmt.Sprintf("- %s: %s [%s]", name, item.Content, ts))
	}
	if rest := len(items) - max; rest > 0 {
		lines = append(lines, fmt.Sprintf("- ...and %d more message(s) waiting.", rest))
	}
	return strings.Join(lines, "\n")
}
