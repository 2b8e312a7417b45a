package discord

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/chris/nudge/internal/bot"
	"go.uber.org/zap"
)

// Discord rejects messages longer than this.
const maxMessageLen = 2000

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore own messages
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	// Only respond to DMs or when mentioned
	isDM := m.GuildID == ""
	isMentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			isMentioned = true
			break
		}
	}
	if !isDM && !isMentioned {
		return
	}

	content := strings.TrimSpace(stripMention(m.Content, s.State.User.ID))
	if content == "" {
		return
	}

	// Show typing indicator
	_ = s.ChannelTyping(m.ChannelID)

	ev := bot.Classify(m.Author.ID, displayName(m.Author), content)
	b.respond(m.ChannelID, ev)
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	user := interactionUser(i)
	if user == nil {
		return
	}

	// Acknowledge right away; generation can take longer than Discord's 3s window.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		b.respond(i.ChannelID, bot.Event{
			Kind:   bot.KindError,
			UserID: user.ID,
			Err:    fmt.Errorf("acknowledging interaction: %w", err),
		})
		return
	}

	_ = s.ChannelTyping(i.ChannelID)
	b.respond(i.ChannelID, bot.Event{
		Kind:        bot.KindSelect,
		UserID:      user.ID,
		DisplayName: displayName(user),
		Token:       i.MessageComponentData().CustomID,
	})
}

// respond dispatches ev and sends the replies. A failed send is reported back
// through the dispatcher once; a failure while sending that notice is only logged.
func (b *Bot) respond(channelID string, ev bot.Event) {
	replies := b.dispatch(ev)
	if err := b.send(channelID, replies); err != nil {
		notice := b.dispatch(bot.Event{Kind: bot.KindError, UserID: ev.UserID, Err: err})
		if err := b.send(channelID, notice); err != nil {
			b.log.Error("sending failure notice", zap.String("channel_id", channelID), zap.Error(err))
		}
	}
}

func (b *Bot) dispatch(ev bot.Event) []bot.Reply {
	return b.dispatcher.Dispatch(b.ctx, ev)
}

func (b *Bot) send(channelID string, replies []bot.Reply) error {
	for _, r := range replies {
		for _, msg := range buildMessages(r) {
			if _, err := b.session.ChannelMessageSendComplex(channelID, msg); err != nil {
				return fmt.Errorf("sending to channel %s: %w", channelID, err)
			}
		}
	}
	return nil
}

// buildMessages splits a reply to fit Discord's limit. The menu, if any, goes
// on the last chunk.
func buildMessages(r bot.Reply) []*discordgo.MessageSend {
	chunks := splitMessage(r.Text, maxMessageLen)
	msgs := make([]*discordgo.MessageSend, len(chunks))
	for i, c := range chunks {
		msgs[i] = &discordgo.MessageSend{Content: c}
	}
	if r.Menu {
		msgs[len(msgs)-1].Components = menuComponents(bot.Menu())
	}
	return msgs
}

func menuComponents(menu [][]bot.Button) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, len(menu))
	for _, row := range menu {
		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, discordgo.Button{
				Label:    btn.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: btn.Token,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func stripMention(s, userID string) string {
	s = strings.ReplaceAll(s, "<@"+userID+">", "")
	s = strings.ReplaceAll(s, "<@!"+userID+">", "")
	return s
}

// splitMessage cuts s into chunks of at most maxLen bytes, preferring the last
// newline before the limit. Cuts never land inside a UTF-8 sequence.
func splitMessage(s string, maxLen int) []string {
	if len(s) <= maxLen {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		if len(s) <= maxLen {
			chunks = append(chunks, s)
			break
		}
		end := maxLen
		for end > 0 && !utf8.RuneStart(s[end]) {
			end--
		}
		if end == 0 {
			// maxLen is smaller than one rune
			_, end = utf8.DecodeRuneInString(s)
		}
		// Try to split at a newline
		if idx := strings.LastIndex(s[:end], "\n"); idx > 0 {
			end = idx + 1
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
