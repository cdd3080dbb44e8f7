package handlers

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/propagation"
	"github.com/iota-uz/profile-projection/pkg/composables"
)

// ObjectAssignment applies removed edges, then added edges, then one
// client-setting recalculation pass for every profile that was marked.
func (c *Context) ObjectAssignment() Handler {
	return typed(func(ctx context.Context, evt *events.ObjectAssignment, _ events.StreamHeader) error {
		if len(evt.Added) == 0 && len(evt.Removed) == 0 {
			composables.UseLogger(ctx).Debug("assignment without added or removed entries, nothing to do")
			return nil
		}
		added, err := propagation.NormalizeEdges(evt.Resource, evt.AssignmentType, evt.Added)
		if err != nil {
			return err
		}
		removed, err := propagation.NormalizeEdges(evt.Resource, evt.AssignmentType, evt.Removed)
		if err != nil {
			return err
		}

		return c.inBatch(ctx, nil, func(ctx context.Context, b *batch) error {
			return c.applyEdges(ctx, b, added, removed, evt)
		})
	})
}

func (c *Context) applyEdges(ctx context.Context, b *batch, added, removed []propagation.Edge, cause events.DomainEvent) error {
	logger := composables.UseLogger(ctx)
	recalculate := propagation.NewProfileSet()

	for _, edge := range removed {
		resolved, err := c.Engine.ResolveEdge(ctx, edge)
		if err != nil {
			return err
		}
		out, err := c.Engine.Unassign(ctx, resolved, cause)
		if err != nil {
			return err
		}
		if err := b.Add(ctx, out.Tuples...); err != nil {
			return err
		}
		if err := c.Repo.DeleteProfileAssignment(ctx, out.Assignment); err != nil {
			return errors.Wrapf(err, "delete assignment %s -> %s", resolved.Child, resolved.Parent)
		}
		recalculate.Add(out.Recalculate...)
		logger.WithFields(logrus.Fields{
			"parent": resolved.Parent.String(),
			"child":  resolved.Child.String(),
			"events": len(out.Tuples),
		}).Debug("unassigned")
	}

	for _, edge := range added {
		resolved, err := c.Engine.ResolveEdge(ctx, edge)
		if err != nil {
			return err
		}
		out, err := c.Engine.Assign(ctx, resolved, cause)
		if err != nil {
			return err
		}
		if err := b.Add(ctx, out.Tuples...); err != nil {
			return err
		}
		if err := c.Repo.CreateProfileAssignment(ctx, out.Assignment); err != nil {
			return errors.Wrapf(err, "create assignment %s -> %s", resolved.Child, resolved.Parent)
		}
		recalculate.Add(out.Recalculate...)
		logger.WithFields(logrus.Fields{
			"parent": resolved.Parent.String(),
			"child":  resolved.Child.String(),
			"events": len(out.Tuples),
		}).Debug("assigned")
	}

	return c.recalculate(ctx, b, recalculate.IDs(), cause)
}
