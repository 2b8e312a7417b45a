// Package coach holds the per-user conversation state machine: it decides
// whether an incoming selection or free-text message should generate a new
// task or evaluate the reply to a pending one.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chris/nudge/internal/db"
	"go.uber.org/zap"
)

// recordedOutcome is stored on every evaluated task. The feedback text is not
// parsed for a verdict.
const recordedOutcome = true

// Store is the persistence the coach needs.
type Store interface {
	CreateTask(ctx context.Context, userID string, category db.Category, content string) (*db.Task, error)
	RecentTasks(ctx context.Context, userID string, limit int) ([]db.Task, error)
	MostRecentTask(ctx context.Context, userID string, category db.Category) (*db.Task, error)
	RecordResponse(ctx context.Context, taskID int64, response string, outcome bool) error
}

// Generator produces text from role instructions and a request.
type Generator interface {
	Generate(ctx context.Context, instructions, request string) (string, error)
}

type Coach struct {
	store         Store
	gen           Generator
	sessions      *sessions
	historyBudget int
	log           *zap.Logger
}

// New builds a Coach. historyEntryTokens caps each history line sent to the
// generator; zero leaves entries whole.
func New(store Store, gen Generator, historyEntryTokens int, log *zap.Logger) *Coach {
	return &Coach{
		store:         store,
		gen:           gen,
		sessions:      newSessions(),
		historyBudget: historyEntryTokens,
		log:           log.Named("coach"),
	}
}

// GenerateTask creates and stores a new task of the given category and returns
// its content. Text tasks and puzzles leave the user awaiting a reply; the
// other categories leave the user idle. Generator failures fall back to the
// category's default content; store failures are returned.
func (c *Coach) GenerateTask(ctx context.Context, userID string, category db.Category) (string, error) {
	if !category.Valid() {
		return "", fmt.Errorf("generating task: %w: %q", db.ErrUnknownCategory, category)
	}
	log := c.log.With(zap.String("user_id", userID), zap.String("category", string(category)))

	s := c.sessions.lock(userID)
	defer s.mu.Unlock()

	history, err := c.store.RecentTasks(ctx, userID, db.DefaultHistoryLimit)
	if err != nil {
		return "", fmt.Errorf("loading history: %w", err)
	}

	content := c.generate(ctx, log, taskPrompt(category, summarizeHistory(history, c.historyBudget)))

	task, err := c.store.CreateTask(ctx, userID, category, content)
	if err != nil {
		return "", fmt.Errorf("saving task: %w", err)
	}

	if category.AwaitsReply() {
		s.awaiting = category
	} else {
		s.awaiting = ""
	}
	log.Info("task sent", zap.Int64("task_id", task.ID), zap.Bool("awaiting_reply", category.AwaitsReply()))
	return content, nil
}

// EvaluateReply handles a free-text message. If the user is awaiting a reply,
// the newest task of that category gets the answer recorded and the generated
// feedback is returned with handled=true. The awaiting state is cleared
// whatever happens next. When nothing is pending, or no matching task exists,
// handled is false and nothing is stored.
func (c *Coach) EvaluateReply(ctx context.Context, userID, text string) (reply string, handled bool, err error) {
	log := c.log.With(zap.String("user_id", userID))

	s := c.sessions.lock(userID)
	defer s.mu.Unlock()

	category := s.awaiting
	if category == "" {
		log.Info("message received, no action taken")
		return "", false, nil
	}
	s.awaiting = ""
	log = log.With(zap.String("category", string(category)))

	task, err := c.store.MostRecentTask(ctx, userID, category)
	if err != nil {
		return "", false, fmt.Errorf("finding pending task: %w", err)
	}
	if task == nil || task.Answered() {
		log.Warn("awaiting a reply but no open task found, dropping message")
		return "", false, nil
	}

	history, err := c.store.RecentTasks(ctx, userID, db.DefaultHistoryLimit)
	if err != nil {
		return "", false, fmt.Errorf("loading history: %w", err)
	}

	reply = c.generate(ctx, log, evaluationPrompt(task, summarizeHistory(history, c.historyBudget), text))

	if err := c.store.RecordResponse(ctx, task.ID, text, recordedOutcome); err != nil {
		if errors.Is(err, db.ErrAlreadyAnswered) {
			log.Warn("task was answered concurrently, dropping message", zap.Int64("task_id", task.ID))
			return "", false, nil
		}
		return "", false, fmt.Errorf("recording response: %w", err)
	}
	log.Info("reply evaluated", zap.Int64("task_id", task.ID))
	return reply, true, nil
}

// generate runs p through the generator. A failure or a blank result yields
// p.fallback, so the returned text is never empty.
func (c *Coach) generate(ctx context.Context, log *zap.Logger, p prompt) string {
	text, err := c.gen.Generate(ctx, p.instructions, p.request)
	if err != nil {
		log.Warn("generation failed, using fallback", zap.Error(err))
		return p.fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("generator returned nothing, using fallback")
		return p.fallback
	}
	return text
}

// Awaiting reports which category, if any, the user is expected to answer.
func (c *Coach) Awaiting(userID string) (db.Category, bool) {
	return c.sessions.awaiting(userID)
}

// History returns the user's most recent tasks, newest first.
func (c *Coach) History(ctx context.Context, userID string) ([]db.Task, error) {
	tasks, err := c.store.RecentTasks(ctx, userID, db.DefaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return tasks, nil
}
