package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chris/nudge/config"
	"github.com/chris/nudge/internal/bot"
	"github.com/chris/nudge/internal/coach"
	"github.com/chris/nudge/internal/db"
	"github.com/chris/nudge/internal/llm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nudge",
	Short: "Daily practice coach for Discord",
	Long: `nudge offers four kinds of short daily practice (self-help tips, writing
prompts, mindfulness exercises and brain teasers), evaluates replies with an
LLM and keeps a per-user history.

Without a subcommand it runs the Discord bot when DISCORD_BOT_TOKEN is set
and the local chat otherwise.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		switch {
		case verbose:
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		case chatMode(cmd):
			// keep the terminal readable
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatMode(cmd) {
			return chatCmd.RunE(cmd, args)
		}
		return botCmd.RunE(cmd, args)
	},
}

// chatMode reports whether cmd ends up in the terminal chat.
func chatMode(cmd *cobra.Command) bool {
	if cmd.HasParent() {
		return cmd.Name() == "chat"
	}
	return config.Load().DiscordToken == ""
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Discord bot, daily nudges and the optional HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		if a.cfg.DiscordToken == "" {
			return fmt.Errorf("DISCORD_BOT_TOKEN is not set")
		}
		return runBot(ctx, a)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the coach from the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		// Check if stdin is a pipe (non-interactive)
		stat, _ := os.Stdin.Stat()
		interactive := stat != nil && stat.Mode()&os.ModeCharDevice != 0
		return runChat(cmd.Context(), a.dispatcher, os.Stdin, os.Stdout, interactive)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(botCmd, chatCmd, serviceCmd)
}

// app holds the pieces every mode shares.
type app struct {
	cfg        *config.Config
	store      *db.DB
	dispatcher *bot.Dispatcher
}

func newApp() (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := db.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("database ready", zap.String("driver", store.Driver()))

	client, err := llm.NewClient(llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.APIKey(),
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.OllamaBaseURL,
		MaxTokens: cfg.LLMMaxTokens,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	gen := llm.NewGenerator(client, cfg.LLMTimeout, logger)
	c := coach.New(store, gen, cfg.HistoryEntryTokens, logger)
	return &app{cfg: cfg, store: store, dispatcher: bot.NewDispatcher(c, logger)}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("closing database", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
