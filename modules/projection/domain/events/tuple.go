package events

import (
	"fmt"
	"strings"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

// EventTuple addresses a resolved event to the stream of one read-model
// object.
type EventTuple struct {
	TargetStream string             `json:"target_stream" validate:"notblank"`
	Target       domain.ObjectIdent `json:"target"`
	Event        ResolvedEvent      `json:"event" validate:"required"`
}

// StreamName is the stream holding the events of object.
func StreamName(object domain.ObjectIdent) string {
	return fmt.Sprintf("%s-%s", strings.ToLower(string(object.Type)), object.ID)
}
