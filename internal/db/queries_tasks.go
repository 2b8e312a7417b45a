package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultHistoryLimit is how many recent tasks make up a user's history.
const DefaultHistoryLimit = 5

const taskColumns = "id, user_id, category, content, user_response, outcome, created_at"

// CreateTask stores a freshly generated task and returns it.
func (d *DB) CreateTask(ctx context.Context, userID string, category Category, content string) (*Task, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("creating task: %w: %q", ErrUnknownCategory, category)
	}
	createdAt := d.nextCreatedAt()
	var id int64
	err := d.conn.QueryRowContext(ctx,
		d.rebind("INSERT INTO tasks (user_id, category, content, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		userID, string(category), content, d.timeArg(createdAt),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}
	return &Task{
		ID:        id,
		UserID:    userID,
		Category:  category,
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

// RecentTasks returns up to limit of the user's tasks across all categories,
// newest first. A non-positive limit means DefaultHistoryLimit.
func (d *DB) RecentTasks(ctx context.Context, userID string, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	q := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?"
	return d.scanTasks(ctx, d.rebind(q), userID, limit)
}

// MostRecentTask returns the user's newest task of the given category, or nil
// if there is none.
func (d *DB) MostRecentTask(ctx context.Context, userID string, category Category) (*Task, error) {
	q := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ? AND category = ? ORDER BY created_at DESC, id DESC LIMIT 1"
	tasks, err := d.scanTasks(ctx, d.rebind(q), userID, string(category))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

// GetTask returns a task by ID.
func (d *DB) GetTask(ctx context.Context, id int64) (*Task, error) {
	q := "SELECT " + taskColumns + " FROM tasks WHERE id = ?"
	tasks, err := d.scanTasks(ctx, d.rebind(q), id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("task %d: %w", id, ErrTaskNotFound)
	}
	return &tasks[0], nil
}

// RecordResponse stores the user's answer and its outcome on a task. A task
// can only be answered once.
func (d *DB) RecordResponse(ctx context.Context, taskID int64, response string, outcome bool) error {
	res, err := d.conn.ExecContext(ctx,
		d.rebind("UPDATE tasks SET user_response = ?, outcome = ? WHERE id = ? AND user_response IS NULL"),
		response, outcome, taskID,
	)
	if err != nil {
		return fmt.Errorf("recording response on task %d: %w", taskID, err)
	}
	n, _ := res.RowsAffected()
	if n == 1 {
		return nil
	}

	var exists int
	err = d.conn.QueryRowContext(ctx, d.rebind("SELECT 1 FROM tasks WHERE id = ?"), taskID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %d: %w", taskID, ErrTaskNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking task %d: %w", taskID, err)
	}
	return fmt.Errorf("task %d: %w", taskID, ErrAlreadyAnswered)
}

// UsersToNudge returns users whose latest task falls in [activeSince, quietSince).
func (d *DB) UsersToNudge(ctx context.Context, activeSince, quietSince time.Time) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx,
		d.rebind(`SELECT user_id FROM tasks
			GROUP BY user_id
			HAVING MAX(created_at) >= ? AND MAX(created_at) < ?
			ORDER BY user_id`),
		d.timeArg(activeSince), d.timeArg(quietSince),
	)
	if err != nil {
		return nil, fmt.Errorf("listing users to nudge: %w", err)
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *DB) scanTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()
	var tasks []Task
	for rows.Next() {
		var t Task
		var category string
		var response sql.NullString
		var outcome sql.NullBool
		var createdAt any
		if err := rows.Scan(&t.ID, &t.UserID, &category, &t.Content, &response, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.Category = Category(category)
		if response.Valid {
			t.UserResponse = &response.String
		}
		if outcome.Valid {
			t.Outcome = &outcome.Bool
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("task %d created_at: %w", t.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
