// Package session manages chat sessions and their message logs.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/groundwork/engine/domain"
	"github.com/WessleyAI/groundwork/engine/store"
)

// DefaultHistoryLimit is used when History is called with limit <= 0.
const DefaultHistoryLimit = 50

// Stats summarizes a session.
type Stats struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Service wraps the session store. Reads of unknown sessions return nil
// values rather than errors.
type Service struct {
	Store  store.Sessions
	Logger *slog.Logger
	Now    func() time.Time
}

// New creates a Service.
func New(s store.Sessions, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: s, Logger: logger, Now: time.Now}
}

func (s *Service) now() time.Time { return s.Now().UTC() }

// validID reports whether id can name a session. IDs are UUIDs.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetOrCreate returns the session with id, creating it when it does not
// exist. A blank or malformed id gets a freshly generated one.
func (s *Service) GetOrCreate(ctx context.Context, id string) (domain.Session, error) {
	if validID(id) {
		sess, err := s.Store.GetSession(ctx, id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Session{}, fmt.Errorf("session: get %s: %w", id, err)
		}
	} else {
		id = uuid.NewString()
	}
	sess, err := s.Store.CreateSession(ctx, domain.Session{ID: id})
	if err != nil {
		return domain.Session{}, fmt.Errorf("session: create: %w", err)
	}
	s.Logger.Info("session: created", "session_id", sess.ID)
	return sess, nil
}

// Get returns the session, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*domain.Session, error) {
	if !validID(id) {
		return nil, nil
	}
	sess, err := s.Store.GetSession(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: get %s: %w", id, err)
	}
	return &sess, nil
}

// Exists reports whether the session exists.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	sess, err := s.Get(ctx, id)
	return sess != nil, err
}

// AddMessage appends a message after validating its role, and records the
// activity on the session.
func (s *Service) AddMessage(ctx context.Context, sessionID, role, content string) (domain.Message, error) {
	r, err := domain.ParseRole(role)
	if err != nil {
		return domain.Message{}, err
	}
	if !validID(sessionID) {
		return domain.Message{}, domain.NotFound("session", sessionID)
	}
	now := s.now()
	msg, err := s.Store.AddMessage(ctx, domain.Message{
		SessionID: sessionID,
		Role:      r,
		Content:   content,
		CreatedAt: now,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("session: add message: %w", err)
	}
	if err := s.Store.TouchSession(ctx, sessionID, now); err != nil {
		s.Logger.Warn("session: touch failed", "session_id", sessionID, "error", err)
	}
	return msg, nil
}

// History returns the most recent limit messages in chronological order.
// An unknown session has no history.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if !validID(sessionID) {
		return []domain.Message{}, nil
	}
	msgs, err := s.Store.Messages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("session: history %s: %w", sessionID, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// Stats returns the session summary, or nil when it does not exist.
func (s *Service) Stats(ctx context.Context, sessionID string) (*Stats, error) {
	sess, err := s.Get(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, err
	}
	n, err := s.Store.CountMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: stats %s: %w", sessionID, err)
	}
	return &Stats{
		SessionID:    sess.ID,
		MessageCount: n,
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.UpdatedAt,
	}, nil
}
