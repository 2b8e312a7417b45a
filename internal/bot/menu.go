package bot

import "github.com/chris/nudge/internal/db"

// Button is one menu entry. Token is the category's wire identifier.
type Button struct {
	Label string
	Token string
}

var labels = map[db.Category]string{
	db.SelfHelp:    "💡 Self-help Coach",
	db.TextTask:    "✍️ Text Task",
	db.Mindfulness: "🧘 Mindfulness & Gratitude",
	db.BrainTrain:  "🧩 Brain-train",
}

// Label is the display name for a category.
func Label(c db.Category) string {
	if l, ok := labels[c]; ok {
		return l
	}
	return string(c)
}

// Menu is the fixed 2x2 category grid.
func Menu() [][]Button {
	return [][]Button{
		{button(db.SelfHelp), button(db.TextTask)},
		{button(db.Mindfulness), button(db.BrainTrain)},
	}
}

func button(c db.Category) Button {
	return Button{Label: Label(c), Token: string(c)}
}
