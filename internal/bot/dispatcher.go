// Package bot classifies inbound chat events and routes them to the coach.
// It is transport-neutral: Discord and the CLI both turn their input into an
// Event and render the returned Replies.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/chris/nudge/internal/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	NextPrompt   = "What do you want to do next?"
	ErrorNotice  = "An unexpected error occurred. Please try again later."
	historyEmpty = "You have no tasks yet. Pick one below to get started."
)

type Kind int

const (
	KindStart Kind = iota
	KindSelect
	KindText
	KindHistory
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindSelect:
		return "select"
	case KindText:
		return "text"
	case KindHistory:
		return "history"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one inbound interaction. Token is set for KindSelect, Text for
// KindText, Err for KindError. UserID may be empty on KindError when the
// transport could not tell who the event came from.
type Event struct {
	Kind        Kind
	UserID      string
	DisplayName string
	Token       string
	Text        string
	Err         error
}

// Reply is one outbound message. Menu asks the transport to attach the
// category grid.
type Reply struct {
	Text string
	Menu bool
}

// Coach is the conversation state machine the dispatcher drives.
type Coach interface {
	GenerateTask(ctx context.Context, userID string, category db.Category) (string, error)
	EvaluateReply(ctx context.Context, userID, text string) (string, bool, error)
	History(ctx context.Context, userID string) ([]db.Task, error)
	Awaiting(userID string) (db.Category, bool)
}

type Dispatcher struct {
	coach Coach
	log   *zap.Logger
}

func NewDispatcher(coach Coach, log *zap.Logger) *Dispatcher {
	return &Dispatcher{coach: coach, log: log.Named("dispatch")}
}

// Classify turns a typed message into an event. Commands are matched
// case-insensitively; everything else is free text.
func Classify(userID, displayName, text string) Event {
	ev := Event{UserID: userID, DisplayName: displayName}
	cmd := strings.ToLower(strings.TrimSpace(text))
	switch {
	case cmd == "/start" || cmd == "!start":
		ev.Kind = KindStart
	case cmd == "/history" || cmd == "!history":
		ev.Kind = KindHistory
	case strings.HasPrefix(cmd, "/") && db.Category(cmd[1:]).Valid():
		ev.Kind = KindSelect
		ev.Token = cmd[1:]
	default:
		ev.Kind = KindText
		ev.Text = text
	}
	return ev
}

// Dispatch handles one event and returns the messages to send back. It never
// panics and never returns an error: failures become a generic notice to the
// user, or nothing when the user is unknown.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (replies []Reply) {
	log := d.log.With(
		zap.String("event_id", uuid.NewString()),
		zap.String("user_id", ev.UserID),
		zap.Stringer("kind", ev.Kind),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while handling event", zap.Any("panic", r), zap.Stack("stack"))
			replies = failure(ev.UserID)
		}
	}()

	var err error
	switch ev.Kind {
	case KindStart:
		replies = greet(ev.DisplayName)
	case KindSelect:
		replies, err = d.selectCategory(ctx, log, ev)
	case KindText:
		replies, err = d.freeText(ctx, ev)
	case KindHistory:
		replies, err = d.history(ctx, ev)
	case KindError:
		log.Error("transport error", zap.Error(ev.Err))
		return failure(ev.UserID)
	default:
		err = fmt.Errorf("unknown event kind %v", ev.Kind)
	}
	if err != nil {
		log.Error("handling event failed", zap.Error(err))
		return failure(ev.UserID)
	}
	return replies
}

func greet(name string) []Reply {
	text := "Hello! How can I assist you today?"
	if name != "" {
		text = fmt.Sprintf("Hello %s! How can I assist you today?", name)
	}
	return []Reply{{Text: text, Menu: true}}
}

func (d *Dispatcher) selectCategory(ctx context.Context, log *zap.Logger, ev Event) ([]Reply, error) {
	category, err := db.ParseCategory(ev.Token)
	if err != nil {
		log.Warn("ignoring selection", zap.Error(err))
		return []Reply{next()}, nil
	}
	content, err := d.coach.GenerateTask(ctx, ev.UserID, category)
	if err != nil {
		return nil, err
	}
	return []Reply{{Text: content}, next()}, nil
}

func (d *Dispatcher) freeText(ctx context.Context, ev Event) ([]Reply, error) {
	reply, handled, err := d.coach.EvaluateReply(ctx, ev.UserID, ev.Text)
	if err != nil {
		return nil, err
	}
	if !handled {
		return []Reply{next()}, nil
	}
	return []Reply{{Text: reply}, next()}, nil
}

func (d *Dispatcher) history(ctx context.Context, ev Event) ([]Reply, error) {
	tasks, err := d.coach.History(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return []Reply{{Text: historyEmpty, Menu: true}}, nil
	}
	text := RenderHistory(tasks, timeNow())
	if c, ok := d.coach.Awaiting(ev.UserID); ok {
		text += fmt.Sprintf("\n\nStill waiting for your reply to the latest %s.", Label(c))
	}
	return []Reply{{Text: text}, next()}, nil
}

func next() Reply {
	return Reply{Text: NextPrompt, Menu: true}
}

func failure(userID string) []Reply {
	if userID == "" {
		return nil
	}
	return []Reply{{Text: ErrorNotice}}
}
