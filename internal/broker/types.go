package broker

import (
	"context"
	"errors"

	"github.com/casualjim/tapes/provider"
)

var ErrHandlerRequired = errors.New("handler is required")

// Handler receives the events of a subscription, one at a time.
type Handler func(context.Context, provider.StreamEvent)

type Broker interface {
	Topic(context.Context, string) Topic
}

type Topic interface {
	Publish(context.Context, provider.StreamEvent) error
	Subscribe(context.Context, Handler) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}
