package db

import (
	"errors"
	"fmt"
	"time"
)

// Category is the kind of task a user asked for. The string values are the
// wire tokens used in buttons and in the tasks table.
type Category string

const (
	SelfHelp    Category = "self_help"
	TextTask    Category = "text_task"
	Mindfulness Category = "mindfulness"
	BrainTrain  Category = "brain_train"
)

// Categories lists every category in menu order.
var Categories = []Category{SelfHelp, TextTask, Mindfulness, BrainTrain}

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrTaskNotFound    = errors.New("task not found")
	ErrAlreadyAnswered = errors.New("task already answered")
)

// ParseCategory maps a wire token to a Category.
func ParseCategory(token string) (Category, error) {
	c := Category(token)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, token)
	}
	return c, nil
}

func (c Category) Valid() bool {
	switch c {
	case SelfHelp, TextTask, Mindfulness, BrainTrain:
		return true
	}
	return false
}

// AwaitsReply reports whether a task of this category expects a free-text answer.
func (c Category) AwaitsReply() bool {
	return c == TextTask || c == BrainTrain
}

type Task struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"user_id"`
	Category     Category  `json:"category"`
	Content      string    `json:"content"`
	UserResponse *string   `json:"user_response,omitempty"`
	Outcome      *bool     `json:"outcome,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Answered reports whether the user has replied to the task.
func (t Task) Answered() bool {
	return t.UserResponse != nil
}
