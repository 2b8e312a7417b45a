package coach

import (
	"fmt"
	"strings"

	"github.com/chris/nudge/internal/db"
	"github.com/chris/nudge/internal/llm"
)

// prompt is one generator call plus the text to use when the call fails.
type prompt struct {
	instructions string
	request      string
	fallback     string
}

// Fallbacks used when generation fails or comes back empty.
var defaultContent = map[db.Category]string{
	db.SelfHelp:    "Here is your self-help tip.",
	db.TextTask:    "Write about your goals for this week.",
	db.Mindfulness: "Take a 5-minute meditation break and note three things you're grateful for.",
	db.BrainTrain:  "What has keys but can't open locks?",
}

const (
	defaultTextFeedback   = "Your response has been evaluated."
	defaultPuzzleFeedback = "Your puzzle answer has been evaluated."
)

// summarizeHistory renders tasks newest-first as "category: content" lines.
// Each entry is cut to entryTokens so a long puzzle cannot crowd out the rest.
func summarizeHistory(tasks []db.Task, entryTokens int) string {
	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		content := strings.Join(strings.Fields(t.Content), " ")
		lines = append(lines, fmt.Sprintf("%s: %s", t.Category, llm.TruncateTokens(content, entryTokens)))
	}
	return strings.Join(lines, "\n")
}

func taskPrompt(c db.Category, history string) prompt {
	p := prompt{fallback: defaultContent[c]}
	switch c {
	case db.SelfHelp:
		p.instructions = "You are a self-help coach. Provide a short, fresh tip on self-improvement. " +
			"Last 5 tasks:\n" + history + "\n" +
			"Do not repeat or closely resemble previous tips. Keep it under 40 words."
		p.request = "Generate a new short self-help tip."
	case db.TextTask:
		p.instructions = "You are a productivity assistant. Provide a short writing task for self-improvement. " +
			"Last 5 tasks:\n" + history + "\n" +
			"Do not repeat or closely resemble previous tasks. Keep it under 50 words."
		p.request = "Generate a new text task for the user."
	case db.Mindfulness:
		p.instructions = "You are a mindfulness coach. Provide a short mindfulness or gratitude exercise. " +
			"Last 5 tasks:\n" + history + "\n" +
			"Do not repeat or closely resemble previous tasks."
		p.request = "Generate a new mindfulness/gratitude exercise."
	case db.BrainTrain:
		p.instructions = "You are a brain trainer providing a single short puzzle or quiz question. " +
			"Last 5 tasks:\n" + history + "\n" +
			"Do not repeat or closely resemble previous puzzles."
		p.request = "Generate a new one-question puzzle or quiz."
	}
	return p
}

// evaluationPrompt builds the feedback call for an answer to task.
func evaluationPrompt(task *db.Task, history, answer string) prompt {
	if task.Category == db.BrainTrain {
		return prompt{
			instructions: "You are an assistant evaluating a short puzzle or quiz response. " +
				"Provide brief validation or correction. " +
				"Previous tasks:\n" + history + "\n" +
				"The puzzle was: " + task.Content + "\n" +
				"Do not repeat yourself or be overly verbose.",
			request:  "User's answer: " + answer + "\nEvaluate correctness.",
			fallback: defaultPuzzleFeedback,
		}
	}
	return prompt{
		instructions: "You are an assistant evaluating a user's written text. " +
			"Provide short, constructive feedback on self-improvement. " +
			"Previous tasks:\n" + history + "\n" +
			"Do not repeat or be overly verbose.",
		request:  "User's text:\n" + answer + "\nEvaluate and give feedback.",
		fallback: defaultTextFeedback,
	}
}
