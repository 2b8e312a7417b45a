package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/chris/nudge/internal/bot"
	"go.uber.org/zap"
)

type Bot struct {
	// ctx bounds every dispatched event; cancelling it aborts in-flight
	// generations and store calls.
	ctx        context.Context
	session    *discordgo.Session
	dispatcher *bot.Dispatcher
	log        *zap.Logger
}

func NewBot(ctx context.Context, token string, d *bot.Dispatcher, log *zap.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	b := &Bot{ctx: ctx, session: s, dispatcher: d, log: log.Named("discord")}
	s.AddHandler(b.onMessage)
	s.AddHandler(b.onInteraction)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}

	b.log.Info("connected", zap.String("username", s.State.User.Username))
	return b, nil
}

func (b *Bot) Close() {
	b.session.Close()
}

// SendDM delivers text to a user's direct-message channel, with the category
// menu attached when menu is set.
func (b *Bot) SendDM(userID, text string, menu bool) error {
	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("opening DM channel for %s: %w", userID, err)
	}
	return b.send(ch.ID, []bot.Reply{{Text: text, Menu: menu}})
}
