package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// frozenClock pins every insert to the same instant so ordering falls back to id.
func frozenClock(d *DB) {
	at := time.Date(2025, 1, 19, 19, 54, 0, 0, time.UTC)
	d.now = func() time.Time { return at }
}

// --- Categories ---

func TestParseCategory(t *testing.T) {
	tests := []struct {
		token   string
		want    Category
		wantErr bool
	}{
		{"self_help", SelfHelp, false},
		{"text_task", TextTask, false},
		{"mindfulness", Mindfulness, false},
		{"brain_train", BrainTrain, false},
		{"", "", true},
		{"Self_Help", "", true},
		{"puzzle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseCategory(tt.token)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCategory) {
					t.Errorf("expected ErrUnknownCategory, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCategory(%q): %v", tt.token, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAwaitsReply(t *testing.T) {
	want := map[Category]bool{SelfHelp: false, TextTask: true, Mindfulness: false, BrainTrain: true}
	for c, w := range want {
		if got := c.AwaitsReply(); got != w {
			t.Errorf("%s.AwaitsReply() = %v, want %v", c, got, w)
		}
	}
}

// --- Tasks ---

func TestCreateAndGetTask(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	task, err := d.CreateTask(ctx, "u1", TextTask, "Write about your goals for this week.")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if task.Answered() {
		t.Error("new task should not be answered")
	}

	got, err := d.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.UserID != "u1" || got.Category != TextTask {
		t.Errorf("got user %q category %q", got.UserID, got.Category)
	}
	if got.Content != "Write about your goals for this week." {
		t.Errorf("content = %q", got.Content)
	}
	if got.UserResponse != nil || got.Outcome != nil {
		t.Errorf("expected no response/outcome, got %v/%v", got.UserResponse, got.Outcome)
	}
	if !got.CreatedAt.Equal(task.CreatedAt) {
		t.Errorf("created_at round trip: got %v, want %v", got.CreatedAt, task.CreatedAt)
	}
}

func TestCreateTaskRejectsUnknownCategory(t *testing.T) {
	d := openTestDB(t)
	_, err := d.CreateTask(context.Background(), "u1", Category("journal"), "x")
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	d := openTestDB(t)
	_, err := d.GetTask(context.Background(), 999)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRecentTasksLimitAndOrder(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	n := 0
	d.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Minute)
	}

	for i := 0; i < 8; i++ {
		c := Categories[i%len(Categories)]
		if _, err := d.CreateTask(ctx, "u1", c, fmt.Sprintf("task %d", i)); err != nil {
			t.Fatalf("CreateTask %d: %v", i, err)
		}
	}
	d.CreateTask(ctx, "someone-else", SelfHelp, "not mine")

	tasks, err := d.RecentTasks(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		want := fmt.Sprintf("task %d", 7-i)
		if task.Content != want {
			t.Errorf("tasks[%d] = %q, want %q", i, task.Content, want)
		}
		if task.UserID != "u1" {
			t.Errorf("tasks[%d] belongs to %q", i, task.UserID)
		}
	}
}

func TestRecentTasksDefaultLimit(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		d.CreateTask(ctx, "u1", SelfHelp, fmt.Sprintf("tip %d", i))
	}
	tasks, err := d.RecentTasks(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(tasks) != DefaultHistoryLimit {
		t.Errorf("expected %d tasks, got %d", DefaultHistoryLimit, len(tasks))
	}
}

func TestRecentTasksTieBreaksOnID(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	frozenClock(d)

	for i := 0; i < 3; i++ {
		d.CreateTask(ctx, "u1", Mindfulness, fmt.Sprintf("m%d", i))
	}
	tasks, err := d.RecentTasks(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[0].Content != "m2" || tasks[2].Content != "m0" {
		t.Errorf("expected newest insert first, got %q..%q", tasks[0].Content, tasks[2].Content)
	}
}

func TestRecentTasksEmpty(t *testing.T) {
	d := openTestDB(t)
	tasks, err := d.RecentTasks(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestCreatedAtNeverGoesBackwards(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	later := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return later }
	first, _ := d.CreateTask(ctx, "u1", TextTask, "first")

	d.now = func() time.Time { return later.Add(-time.Hour) }
	second, _ := d.CreateTask(ctx, "u1", TextTask, "second")

	if second.CreatedAt.Before(first.CreatedAt) {
		t.Errorf("created_at went backwards: %v then %v", first.CreatedAt, second.CreatedAt)
	}
	latest, err := d.MostRecentTask(ctx, "u1", TextTask)
	if err != nil {
		t.Fatalf("MostRecentTask: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("expected second task to be most recent, got %q", latest.Content)
	}
}

func TestMostRecentTask(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	frozenClock(d)

	d.CreateTask(ctx, "u1", TextTask, "old text task")
	want, _ := d.CreateTask(ctx, "u1", TextTask, "new text task")
	d.CreateTask(ctx, "u1", BrainTrain, "a puzzle")
	d.CreateTask(ctx, "u2", TextTask, "other user")

	got, err := d.MostRecentTask(ctx, "u1", TextTask)
	if err != nil {
		t.Fatalf("MostRecentTask: %v", err)
	}
	if got == nil || got.ID != want.ID {
		t.Fatalf("expected task %d, got %+v", want.ID, got)
	}

	none, err := d.MostRecentTask(ctx, "u1", Mindfulness)
	if err != nil {
		t.Fatalf("MostRecentTask(mindfulness): %v", err)
	}
	if none != nil {
		t.Errorf("expected nil, got %+v", none)
	}
}

func TestRecordResponse(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	task, _ := d.CreateTask(ctx, "u1", TextTask, "Describe your ideal morning.")
	if err := d.RecordResponse(ctx, task.ID, "I will exercise daily", true); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}

	got, _ := d.GetTask(ctx, task.ID)
	if got.UserResponse == nil || *got.UserResponse != "I will exercise daily" {
		t.Errorf("user_response = %v", got.UserResponse)
	}
	if got.Outcome == nil || !*got.Outcome {
		t.Errorf("outcome = %v, want true", got.Outcome)
	}
	// Content is untouched
	if got.Content != "Describe your ideal morning." {
		t.Errorf("content changed: %q", got.Content)
	}
}

func TestRecordResponseOnlyOnce(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	task, _ := d.CreateTask(ctx, "u1", BrainTrain, "What has keys but can't open locks?")
	if err := d.RecordResponse(ctx, task.ID, "a piano", true); err != nil {
		t.Fatalf("first RecordResponse: %v", err)
	}
	err := d.RecordResponse(ctx, task.ID, "a map", false)
	if !errors.Is(err, ErrAlreadyAnswered) {
		t.Fatalf("expected ErrAlreadyAnswered, got %v", err)
	}

	got, _ := d.GetTask(ctx, task.ID)
	if *got.UserResponse != "a piano" || !*got.Outcome {
		t.Errorf("second answer leaked through: %q %v", *got.UserResponse, *got.Outcome)
	}
}

func TestRecordResponseMissingTask(t *testing.T) {
	d := openTestDB(t)
	err := d.RecordResponse(context.Background(), 42, "hello", true)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestUsersToNudge(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

	at := func(ago time.Duration) {
		d.now = func() time.Time { return now.Add(-ago) }
	}

	at(30 * 24 * time.Hour)
	d.CreateTask(ctx, "gone", SelfHelp, "long ago")

	at(2 * 24 * time.Hour)
	d.CreateTask(ctx, "lapsed", SelfHelp, "two days ago")

	at(2 * 24 * time.Hour)
	d.CreateTask(ctx, "busy", SelfHelp, "two days ago")
	at(time.Hour)
	d.CreateTask(ctx, "busy", TextTask, "an hour ago")

	users, err := d.UsersToNudge(ctx, now.Add(-7*24*time.Hour), now.Add(-20*time.Hour))
	if err != nil {
		t.Fatalf("UsersToNudge: %v", err)
	}
	if len(users) != 1 || users[0] != "lapsed" {
		t.Errorf("expected [lapsed], got %v", users)
	}
}

func TestRebind(t *testing.T) {
	sqlite := &DB{dialect: dialectSQLite}
	pg := &DB{dialect: dialectPostgres}
	q := "SELECT * FROM tasks WHERE user_id = ? AND category = ? LIMIT ?"

	if got := sqlite.rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	want := "SELECT * FROM tasks WHERE user_id = $1 AND category = $2 LIMIT $3"
	if got := pg.rebind(q); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	tests := map[string]bool{
		"postgres://u:p@localhost/nudge": true,
		"postgresql://localhost/nudge":   true,
		"./nudge.db":                     false,
		":memory:":                       false,
		"file:nudge.db?cache=shared":     false,
	}
	for dsn, want := range tests {
		if got := isPostgresDSN(dsn); got != want {
			t.Errorf("isPostgresDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

// TestPostgresRoundTrip runs against a real server when NUDGE_TEST_POSTGRES_URL is set.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("NUDGE_TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("NUDGE_TEST_POSTGRES_URL not set")
	}
	d, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()
	ctx := context.Background()
	user := fmt.Sprintf("pg-test-%d", time.Now().UnixNano())

	task, err := d.CreateTask(ctx, user, BrainTrain, "What has keys but can't open locks?")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	latest, err := d.MostRecentTask(ctx, user, BrainTrain)
	if err != nil || latest == nil || latest.ID != task.ID {
		t.Fatalf("MostRecentTask: %v %+v", err, latest)
	}
	if err := d.RecordResponse(ctx, task.ID, "a piano", true); err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	if err := d.RecordResponse(ctx, task.ID, "again", true); !errors.Is(err, ErrAlreadyAnswered) {
		t.Errorf("expected ErrAlreadyAnswered, got %v", err)
	}
	recent, err := d.RecentTasks(ctx, user, 5)
	if err != nil || len(recent) != 1 {
		t.Fatalf("RecentTasks: %v %d", err, len(recent))
	}
}
