package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/casualjim/tapes/provider"
	"github.com/casualjim/tapes/proxyfetch"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	ErrNoModel    = errors.New("model is required")
	ErrNoMessages = errors.New("at least one message is required")
)

var _ provider.Provider = (*Provider)(nil)

type Provider struct {
	client *openai.Client
}

// New creates a provider whose HTTP traffic goes through fetcher. The SDK's own retries are
// disabled so the fetcher's retry policy is the only one in effect. A nil fetcher talks to
// the API directly.
func New(fetcher *proxyfetch.Fetcher, options ...option.RequestOption) *Provider {
	base := []option.RequestOption{option.WithMaxRetries(0)}
	if fetcher != nil {
		base = append(base, option.WithHTTPClient(fetcher.Client()))
	}
	client := openai.NewClient(append(base, options...)...)
	return &Provider{
		client: client,
	}
}

func (p *Provider) buildRequest(params *provider.CompletionParams) (openai.ChatCompletionNewParams, error) {
	if params.Model == "" {
		return openai.ChatCompletionNewParams{}, ErrNoModel
	}
	if len(params.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, ErrNoMessages
	}

	msgs, err := messagesToOpenAI(params.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	return openai.ChatCompletionNewParams{
		Messages: openai.F(msgs),
		Model:    openai.F(params.Model),
		N:        openai.Int(1),
	}, nil
}

func (p *Provider) ChatCompletion(ctx context.Context, params provider.CompletionParams) (<-chan provider.StreamEvent, error) {
	chatParams, err := p.buildRequest(&params)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		if params.Stream {
			p.runStream(ctx, chatParams, &params, events)
		} else {
			p.runOnce(ctx, chatParams, &params, events)
		}
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, params openai.ChatCompletionNewParams, command *provider.CompletionParams, events chan<- provider.StreamEvent) {
	strm := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer strm.Close()

	if strm.Err() != nil {
		events <- errorEvent(command, strm.Err())
		return
	}

	var started bool
	var acc openai.ChatCompletionAccumulator
	for strm.Next() {
		if err := ctx.Err(); err != nil {
			events <- errorEvent(command, err)
			return
		}
		if !started {
			started = true
			events <- provider.Delim{RunID: command.RunID, Delim: "start"}
		}

		chunk := strm.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		events <- provider.Chunk{
			RunID:     command.RunID,
			Content:   chunk.Choices[0].Delta.Content,
			Timestamp: strfmt.DateTime(time.Now()),
		}
	}
	if err := strm.Err(); err != nil {
		events <- errorEvent(command, err)
		return
	}

	if started {
		events <- provider.Delim{RunID: command.RunID, Delim: "end"}
	}
	events <- completionToResponse(&acc.ChatCompletion, command)
}

func (p *Provider) runOnce(ctx context.Context, params openai.ChatCompletionNewParams, command *provider.CompletionParams, events chan<- provider.StreamEvent) {
	chat, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		events <- errorEvent(command, err)
		return
	}
	events <- completionToResponse(chat, command)
}

func messagesToOpenAI(msgs []provider.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case provider.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case provider.RoleUser:
			result = append(result, openai.UserMessageParts(openai.TextPart(msg.Content)))
		case provider.RoleAssistant:
			am := openai.ChatCompletionAssistantMessageParam{
				Role: openai.F(openai.ChatCompletionAssistantMessageParamRoleAssistant),
			}
			am.Content.Value = append(am.Content.Value, openai.TextPart(msg.Content))
			result = append(result, am)
		default:
			return nil, fmt.Errorf("unsupported message role %q", msg.Role)
		}
	}
	return result, nil
}

func completionToResponse(chat *openai.ChatCompletion, command *provider.CompletionParams) provider.StreamEvent {
	resp := provider.Response{
		RunID:     command.RunID,
		Model:     chat.Model,
		Message:   provider.Message{Role: provider.RoleAssistant},
		Timestamp: strfmt.DateTime(time.Now()),
	}
	if len(chat.Choices) > 0 {
		resp.Message.Content = chat.Choices[0].Message.Content
	}
	return resp
}

func errorEvent(command *provider.CompletionParams, err error) provider.Error {
	return provider.Error{
		RunID:     command.RunID,
		Err:       err,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}
