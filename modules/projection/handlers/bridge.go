package handlers

import (
	"context"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/pkg/repo"
)

// upgradable is a superseded event version that converts to its successor.
type upgradable[N events.DomainEvent] interface {
	events.DomainEvent
	Upgrade() N
}

// versionBridge validates a legacy payload, upgrades it and hands it to the
// handler of the current version.
func versionBridge[O upgradable[N], N events.DomainEvent](current Handler) Handler {
	return HandlerFunc(func(ctx context.Context, evt events.DomainEvent, header events.StreamHeader, tx repo.Tx) error {
		legacy, err := checkInput[O](evt, tx)
		if err != nil {
			return err
		}
		return current.Handle(ctx, legacy.Upgrade(), header, tx)
	})
}

func (c *Context) UserCreatedV1() Handler {
	return versionBridge[*events.UserCreatedV1, *events.UserCreated](c.UserCreated())
}

func (c *Context) FunctionCreatedV1() Handler {
	return versionBridge[*events.FunctionCreatedV1, *events.FunctionCreated](c.FunctionCreated())
}
