package broker

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/casualjim/tapes/pkg/slogx"
	"github.com/casualjim/tapes/provider"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to topic ids to form NATS subjects.
const DefaultSubjectPrefix = "tapes.sessions"

// natsBroker holds no per-topic state; subscriptions live on the NATS connection.
type natsBroker struct {
	client *nats.Conn
	prefix string
}

// NATS returns a broker that publishes on the subject "<prefix>.<topic id>". An empty prefix
// means DefaultSubjectPrefix.
func NATS(client *nats.Conn, prefix string) *natsBroker {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &natsBroker{
		client: client,
		prefix: prefix,
	}
}

func (b *natsBroker) Topic(_ context.Context, id string) Topic {
	return &natsTopic{
		client:  b.client,
		subject: Subject(b.prefix, id),
	}
}

// Subject builds a NATS subject for a topic id. The id is carried as a single base64url token,
// so distinct ids never share a subject and no id can inject wildcards or extra tokens.
func Subject(prefix, id string) string {
	token := base64.RawURLEncoding.EncodeToString([]byte(id))
	if token == "" {
		// an empty token is not a valid subject; "_" is never produced for a non-empty id
		token = "_"
	}
	return prefix + "." + token
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(_ context.Context, event provider.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %T: %w", event, err)
	}
	return t.client.Publish(t.subject, data)
}

func (t *natsTopic) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrHandlerRequired
	}

	events := make(chan provider.StreamEvent, subscriptionBuffer)
	done := make(chan struct{})
	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		event, err := provider.ParseStreamEvent(msg.Data)
		if err != nil {
			slog.Error("failed to decode stream event", slog.String("subject", msg.Subject), slogx.Error(err))
			return
		}
		select {
		case events <- event:
		case <-done:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", t.subject, err)
	}
	if err := t.client.Flush(); err != nil {
		_ = nsub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s: %w", t.subject, err)
	}

	sub := &natsSubscription{
		id:   uuid.Must(uuid.NewV7()).String(),
		sub:  nsub,
		done: done,
	}
	go sub.forward(ctx, events, handler)
	return sub, nil
}

type natsSubscription struct {
	id        string
	sub       *nats.Subscription
	done      chan struct{}
	closeOnce sync.Once
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Unsubscribe() {
	n.closeOnce.Do(func() {
		close(n.done)
		if err := n.sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
		}
	})
}

func (n *natsSubscription) forward(ctx context.Context, events <-chan provider.StreamEvent, handler Handler) {
	for {
		select {
		case <-n.done:
			return
		case <-ctx.Done():
			n.Unsubscribe()
			return
		case event := <-events:
			handler(ctx, event)
		}
	}
}
