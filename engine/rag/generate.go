package rag

import (
	"context"
	"fmt"

	"github.com/WessleyAI/groundwork/engine/domain"
)

// SystemPrompt confines the model to the supplied context.
const SystemPrompt = "You are a helpful assistant that answers questions based only on the provided context. " +
	"If the context doesn't contain information to answer the question, say so explicitly. " +
	"Always provide accurate information based solely on the context provided."

// Generation defaults.
const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1000
)

// Generator produces a candidate answer from a question and its context.
type Generator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// ChatModel is a chat completion backend such as ollama.ChatClient or
// openai.Client.
type ChatModel interface {
	Chat(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, error)
}

// LLMGenerator prompts a ChatModel with the context and question.
type LLMGenerator struct {
	Model       ChatModel
	Temperature float32
	MaxTokens   int
}

// NewLLMGenerator uses the default temperature and token limit.
func NewLLMGenerator(m ChatModel) *LLMGenerator {
	return &LLMGenerator{Model: m, Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, question, context string) (string, error) {
	user := fmt.Sprintf("Context: %s\n\nQuestion: %s", context, question)
	answer, err := g.Model.Chat(ctx, SystemPrompt, user, g.Temperature, g.MaxTokens)
	if err != nil {
		return "", fmt.Errorf("rag: generate: %w", domain.External("llm", err))
	}
	return answer, nil
}
