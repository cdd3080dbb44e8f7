// Package eventbus delivers relayed outbox messages to in-process subscribers.
package eventbus

import (
	"context"

	"github.com/iota-uz/profile-projection/pkg/eventbus"
	"github.com/iota-uz/profile-projection/pkg/outbox"
)

// Dispatcher publishes (*outbox.Meta, topic string, payload json.RawMessage)
// on the bus. Subscriber errors and panics fail the delivery so the relay
// retries it.
type Dispatcher struct {
	bus eventbus.Bus
}

func New(bus eventbus.Bus) *Dispatcher {
	return &Dispatcher{bus: bus}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.bus.PublishE(&msg.Meta, msg.Meta.Topic, msg.Payload)
}
