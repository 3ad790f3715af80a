package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/session"
)

// ChatRequest is one turn of a conversation. A blank or unknown SessionID
// starts a new session.
type ChatRequest struct {
	SessionID string   `json:"session_id,omitempty"`
	Message   string   `json:"message"`
	TopK      int      `json:"top_k,omitempty"`
	Threshold *float64 `json:"similarity_threshold,omitempty"`
}

// ChatResponse carries the session the turn was recorded in.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Response
}

var errNoSessions = errors.New("rag: sessions not configured")

// Chat records the user message, answers it with Query and records the
// answer. Messages of one session are not ordered against concurrent
// turns of the same session; callers serialize those.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if o.sessions == nil {
		return ChatResponse{}, errNoSessions
	}
	if err := domain.ValidateQuestion(req.Message); err != nil {
		return ChatResponse{}, err
	}
	sess, err := o.sessions.GetOrCreate(ctx, req.SessionID)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("rag: chat: %w", err)
	}
	if _, err := o.sessions.AddMessage(ctx, sess.ID, string(domain.RoleUser), req.Message); err != nil {
		return ChatResponse{}, fmt.Errorf("rag: chat: %w", err)
	}

	resp := o.Query(ctx, Request{Question: req.Message, TopK: req.TopK, Threshold: req.Threshold})

	if _, err := o.sessions.AddMessage(ctx, sess.ID, string(domain.RoleAssistant), resp.Answer); err != nil {
		return ChatResponse{}, fmt.Errorf("rag: chat: %w", err)
	}
	return ChatResponse{SessionID: sess.ID, Response: resp}, nil
}

// History returns the most recent limit messages of a session in
// chronological order.
func (o *Orchestrator) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if o.sessions == nil {
		return nil, errNoSessions
	}
	return o.sessions.History(ctx, sessionID, limit)
}

// Stats summarizes a session, or returns nil when it does not exist.
func (o *Orchestrator) Stats(ctx context.Context, sessionID string) (*session.Stats, error) {
	if o.sessions == nil {
		return nil, errNoSessions
	}
	return o.sessions.Stats(ctx, sessionID)
}
