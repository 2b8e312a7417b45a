package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

var ErrEmptyResponse = errors.New("empty response from model")

// Generator turns an instruction/request pair into generated text. Each call
// is bounded by its own timeout so a stalled provider degrades instead of
// blocking the caller.
type Generator struct {
	client  Client
	timeout time.Duration
	log     *zap.Logger
}

func NewGenerator(client Client, timeout time.Duration, log *zap.Logger) *Generator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Generator{client: client, timeout: timeout, log: log.Named("llm")}
}

// Generate sends instructions as the system prompt and request as the single
// user message. Whitespace-only output is reported as ErrEmptyResponse.
func (g *Generator) Generate(ctx context.Context, instructions, request string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := []Message{{Role: "user", Content: request}}
	start := time.Now()
	resp, err := g.client.Chat(ctx, instructions, messages)
	elapsed := time.Since(start)
	if err != nil {
		g.log.Warn("generation failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return "", fmt.Errorf("generating: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	g.log.Debug("generation finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("prompt_tokens_est", EstimateMessagesTokens(instructions, messages)),
		zap.Int("output_tokens_est", EstimateTokens(text)),
	)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
