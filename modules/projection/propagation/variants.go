package propagation

import (
	"fmt"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

// NewWasAssignedTo selects the assignment event for the container type of
// assigned.Target.
func NewWasAssignedTo(assigned events.Assigned) (events.ResolvedEvent, error) {
	switch assigned.Target.Type {
	case domain.ContainerTypeGroup:
		return &events.WasAssignedToGroup{Assigned: assigned}, nil
	case domain.ContainerTypeOrganization:
		return &events.WasAssignedToOrganization{Assigned: assigned}, nil
	case domain.ContainerTypeRole:
		return &events.WasAssignedToRole{Assigned: assigned}, nil
	case domain.ContainerTypeFunction:
		return &events.WasAssignedToFunction{Assigned: assigned}, nil
	default:
		return nil, fmt.Errorf("%w: no assignment event for container type %q", domain.ErrUnsupportedType, assigned.Target.Type)
	}
}
