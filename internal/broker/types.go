package broker

import (
	"context"

	"userbus/internal/settlement"
	"userbus/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, msg models.OutboundMessage) error
	Close() error
}

// Consumer delivers messages to a handler one at a time per worker and
// settles each according to the handler's decision. Consume blocks until ctx
// is cancelled or the connection fails.
type Consumer interface {
	Consume(ctx context.Context, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc returns how the delivery should be settled. A non-nil error is
// settled like settlement.None: the message is redelivered later.
type HandlerFunc func(ctx context.Context, msg models.InboundMessage) (settlement.Decision, error)
