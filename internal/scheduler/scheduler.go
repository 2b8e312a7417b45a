package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chris/nudge/internal/db"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NudgeText opens every daily nudge.
const NudgeText = "Ready for today's practice?"

const (
	// Users who have been away longer than this are left alone.
	activeWindow = 7 * 24 * time.Hour
	// Users who had a task more recently than this don't need a nudge.
	quietPeriod = 20 * time.Hour
)

type Store interface {
	UsersToNudge(ctx context.Context, activeSince, quietSince time.Time) ([]string, error)
}

// DMSender delivers text to a user's direct messages, with the category menu
// attached when menu is set.
type DMSender func(userID, text string, menu bool) error

type Scheduler struct {
	cron       *cron.Cron
	store      Store
	webhookURL string
	dmSend     DMSender
	client     *http.Client
	now        func() time.Time
	log        *zap.Logger
}

func New(store Store, webhookURL string, dmSend DMSender, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		store:      store,
		webhookURL: webhookURL,
		dmSend:     dmSend,
		client:     &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
		log:        log.Named("scheduler"),
	}
}

// Start registers the daily nudge under cronExpr (standard five-field cron) and
// starts the cron loop.
func (s *Scheduler) Start(cronExpr string) error {
	_, err := s.cron.AddFunc(cronExpr, func() {
		if _, err := s.RunNudge(context.Background()); err != nil {
			s.log.Error("nudge run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron %q: %w", cronExpr, err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("cron", cronExpr))
	return nil
}

// Stop halts the cron loop and waits for a running nudge to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunNudge sends one nudge to every user due for one and returns how many
// were delivered. A failed delivery is logged and does not stop the run.
func (s *Scheduler) RunNudge(ctx context.Context) (int, error) {
	now := s.now()
	users, err := s.store.UsersToNudge(ctx, now.Add(-activeWindow), now.Add(-quietPeriod))
	if err != nil {
		return 0, fmt.Errorf("finding users to nudge: %w", err)
	}

	sent := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := s.deliver(ctx, userID); err != nil {
			s.log.Warn("nudge not delivered", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		sent++
	}
	s.log.Info("nudge run complete", zap.Int("due", len(users)), zap.Int("sent", sent))
	return sent, nil
}

func (s *Scheduler) deliver(ctx context.Context, userID string) error {
	// Try DM first
	if s.dmSend != nil {
		err := s.dmSend(userID, NudgeText, true)
		if err == nil {
			return nil
		}
		s.log.Debug("DM failed, trying webhook", zap.String("user_id", userID), zap.Error(err))
	}
	// Fall back to webhook
	if s.webhookURL != "" {
		return s.postWebhook(ctx, webhookText(userID))
	}
	return fmt.Errorf("no delivery method available")
}

// webhookText is the nudge for a shared channel. Webhook messages carry no
// buttons, so the categories are listed as commands.
func webhookText(userID string) string {
	tokens := make([]string, len(db.Categories))
	for i, c := range db.Categories {
		tokens[i] = "/" + string(c)
	}
	return fmt.Sprintf("<@%s> %s Reply with one of %s.", userID, NudgeText, strings.Join(tokens, ", "))
}

func (s *Scheduler) postWebhook(ctx context.Context, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
