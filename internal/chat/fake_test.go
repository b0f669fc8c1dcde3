package chat

import (
	"context"
	"sync"

	"github.com/casualjim/tapes/provider"
)

type fakeProvider struct {
	mu     sync.Mutex
	calls  []provider.CompletionParams
	events func(provider.CompletionParams) []provider.StreamEvent
	err    error
}

func (f *fakeProvider) ChatCompletion(_ context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	evs := f.events(params)
	ch := make(chan provider.StreamEvent, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) Calls() []provider.CompletionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.CompletionParams(nil), f.calls...)
}

// echoProvider answers every turn with "echo: <last user message>", streaming it in two chunks when asked.
func echoProvider() *fakeProvider {
	return &fakeProvider{events: func(p provider.CompletionParams) []provider.StreamEvent {
		last := p.Messages[len(p.Messages)-1].Content
		reply := provider.Message{Role: provider.RoleAssistant, Content: "echo: " + last}
		if !p.Stream {
			return []provider.StreamEvent{provider.Response{RunID: p.RunID, Model: p.Model, Message: reply}}
		}
		return []provider.StreamEvent{
			provider.Delim{RunID: p.RunID, Delim: "start"},
			provider.Chunk{RunID: p.RunID, Content: "echo: "},
			provider.Chunk{RunID: p.RunID, Content: last},
			provider.Delim{RunID: p.RunID, Delim: "end"},
			provider.Response{RunID: p.RunID, Model: p.Model, Message: reply},
		}
	}}
}

func failingProvider(err error) *fakeProvider {
	return &fakeProvider{events: func(p provider.CompletionParams) []provider.StreamEvent {
		return []provider.StreamEvent{provider.Error{RunID: p.RunID, Err: err}}
	}}
}
