package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chris/nudge/internal/bot"
	"github.com/chris/nudge/internal/discord"
	"github.com/chris/nudge/internal/httpapi"
	"github.com/chris/nudge/internal/scheduler"
	"golang.org/x/sync/errgroup"
)

// chatUserID is the single user of the terminal chat.
const chatUserID = "local"

func runBot(ctx context.Context, a *app) error {
	b, err := discord.NewBot(ctx, a.cfg.DiscordToken, a.dispatcher, logger)
	if err != nil {
		return fmt.Errorf("failed to start Discord bot: %w", err)
	}
	defer b.Close()

	if a.cfg.NudgeCron != "" {
		sched := scheduler.New(a.store, a.cfg.DiscordWebhook, b.SendDM, logger)
		if err := sched.Start(a.cfg.NudgeCron); err != nil {
			return err
		}
		defer sched.Stop()
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.HTTPAddr != "" {
		srv := httpapi.New(a.cfg.HTTPAddr, a.store, logger)
		g.Go(func() error { return srv.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	logger.Info("bot is running, press Ctrl+C to exit")
	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// runChat drives the dispatcher from in until EOF, exit or quit. The prompt is
// only shown when interactive.
func runChat(ctx context.Context, d *bot.Dispatcher, in io.Reader, out io.Writer, interactive bool) error {
	scanner := bufio.NewScanner(in)
	prompt := func() {
		if interactive {
			fmt.Fprint(out, "nudge> ")
		}
	}

	if interactive {
		fmt.Fprintln(out, "Type /start to begin, /history to see recent tasks, exit to quit.")
	}
	prompt()
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			prompt()
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		for _, r := range d.Dispatch(ctx, bot.Classify(chatUserID, "", input)) {
			fmt.Fprintln(out, r.Text)
			if r.Menu {
				fmt.Fprint(out, renderMenu(bot.Menu()))
			}
		}
		prompt()
	}
	return scanner.Err()
}

// renderMenu lays the category buttons out as a text grid, one row per line.
func renderMenu(menu [][]bot.Button) string {
	var b strings.Builder
	for _, row := range menu {
		cells := make([]string, len(row))
		for i, btn := range row {
			cells[i] = fmt.Sprintf("[%s  /%s]", btn.Label, btn.Token)
		}
		b.WriteString("  " + strings.Join(cells, "  ") + "\n")
	}
	return b.String()
}
