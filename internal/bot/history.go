package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/chris/nudge/internal/db"
	"github.com/dustin/go-humanize"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// RenderHistory formats tasks, newest first, as a short list with relative times.
func RenderHistory(tasks []db.Task, now time.Time) string {
	var b strings.Builder
	b.WriteString("Your recent tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n%s · %s", Label(t.Category), humanize.RelTime(t.CreatedAt, now, "ago", "from now"))
		if t.Category.AwaitsReply() {
			if t.Answered() {
				b.WriteString(" · answered")
			} else {
				b.WriteString(" · open")
			}
		}
		fmt.Fprintf(&b, "\n%s\n", t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
