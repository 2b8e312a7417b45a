package llm

import "context"

type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content,omitempty"`
}

type Response struct {
	Content string
}

// Client is a single chat-completion round trip against one provider.
type Client interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error)
}
