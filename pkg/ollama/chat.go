package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ChatClient requests non-streaming completions from /api/chat.
type ChatClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewChatClient creates an Ollama chat client for model.
func NewChatClient(baseURL, model string) *ChatClient {
	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(120 * time.Second),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatReq struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResp struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Chat sends a system and a user message and returns the reply text.
func (c *ChatClient) Chat(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error) {
	req := chatReq{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Options: chatOptions{Temperature: temperature, NumPredict: maxTokens},
	}
	var resp chatResp
	if err := postJSON(ctx, c.client, c.baseURL+"/api/chat", req, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return resp.Message.Content, nil
}
