// Package chat holds the conversational front-ends: a terminal loop and an HTTP API.
// Both drive a Session, which owns the history of one conversation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/casualjim/tapes/provider"
	"github.com/google/uuid"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrNoResponse   = errors.New("completion ended without a response")
)

// Session is one conversation with a model. Turns on the same session are serialized.
type Session struct {
	id       string
	model    string
	provider provider.Provider

	mu      sync.Mutex
	history []provider.Message
}

// NewSession starts a conversation. A non-empty instructions string becomes the system message.
func NewSession(id string, p provider.Provider, model, instructions string) *Session {
	s := &Session{id: id, model: model, provider: p}
	if strings.TrimSpace(instructions) != "" {
		s.history = append(s.history, provider.Message{Role: provider.RoleSystem, Content: instructions})
	}
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Model() string {
	return s.model
}

// History returns a copy of the conversation so far.
func (s *Session) History() []provider.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Send runs one turn: the user text is appended, the model is asked for a reply and the reply
// is appended. onEvent, when set, sees every event of the completion as it arrives. On
// failure the history is left as it was before the call.
func (s *Session) Send(ctx context.Context, text string, stream bool, onEvent func(provider.StreamEvent)) (provider.Message, error) {
	if strings.TrimSpace(text) == "" {
		return provider.Message{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(slices.Clone(s.history), provider.Message{Role: provider.RoleUser, Content: text})
	events, err := s.provider.ChatCompletion(ctx, provider.CompletionParams{
		RunID:    uuid.Must(uuid.NewV7()),
		Model:    s.model,
		Messages: msgs,
		Stream:   stream,
	})
	if err != nil {
		return provider.Message{}, err
	}

	var (
		reply    provider.Message
		replied  bool
		eventErr error
	)
	for event := range events {
		if onEvent != nil {
			onEvent(event)
		}
		switch e := event.(type) {
		case provider.Response:
			reply, replied = e.Message, true
		case provider.Error:
			eventErr = e
		}
	}

	if eventErr != nil {
		return provider.Message{}, fmt.Errorf("chat turn: %w", eventErr)
	}
	if !replied {
		return provider.Message{}, ErrNoResponse
	}
	s.history = append(msgs, reply)
	return reply, nil
}

// Reset drops everything but the system message.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) > 0 && s.history[0].Role == provider.RoleSystem {
		s.history = s.history[:1]
		return
	}
	s.history = nil
}
