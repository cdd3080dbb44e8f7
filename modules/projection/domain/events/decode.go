package events

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
)

var ErrUnknownEventType = errors.New("unknown event type")

var registry = map[Type]func() DomainEvent{
	TypeUserCreated:                   func() DomainEvent { return &UserCreated{} },
	TypeUserCreatedV1:                 func() DomainEvent { return &UserCreatedV1{} },
	TypeGroupCreated:                  func() DomainEvent { return &GroupCreated{} },
	TypeOrganizationCreated:           func() DomainEvent { return &OrganizationCreated{} },
	TypeProfileDeleted:                func() DomainEvent { return &ProfileDeleted{} },
	TypeProfilePropertiesChanged:      func() DomainEvent { return &ProfilePropertiesChanged{} },
	TypeProfileTagsAdded:              func() DomainEvent { return &ProfileTagsAdded{} },
	TypeProfileTagsRemoved:            func() DomainEvent { return &ProfileTagsRemoved{} },
	TypeProfileClientSettingsSet:      func() DomainEvent { return &ProfileClientSettingsSet{} },
	TypeProfileClientSettingsSetBatch: func() DomainEvent { return &ProfileClientSettingsSetBatch{} },
	TypeProfileClientSettingsDeleted:  func() DomainEvent { return &ProfileClientSettingsDeleted{} },
	TypeRoleCreated:                   func() DomainEvent { return &RoleCreated{} },
	TypeRoleDeleted:                   func() DomainEvent { return &RoleDeleted{} },
	TypeRolePropertiesChanged:         func() DomainEvent { return &RolePropertiesChanged{} },
	TypeRoleTagsAdded:                 func() DomainEvent { return &RoleTagsAdded{} },
	TypeRoleTagsRemoved:               func() DomainEvent { return &RoleTagsRemoved{} },
	TypeFunctionCreated:               func() DomainEvent { return &FunctionCreated{} },
	TypeFunctionCreatedV1:             func() DomainEvent { return &FunctionCreatedV1{} },
	TypeFunctionDeleted:               func() DomainEvent { return &FunctionDeleted{} },
	TypeFunctionPropertiesChanged:     func() DomainEvent { return &FunctionPropertiesChanged{} },
	TypeTagCreated:                    func() DomainEvent { return &TagCreated{} },
	TypeTagDeleted:                    func() DomainEvent { return &TagDeleted{} },
	TypeObjectAssignment:              func() DomainEvent { return &ObjectAssignment{} },
}

// Decode unmarshals a JSON payload into the event registered for t.
func Decode(t Type, payload []byte) (DomainEvent, error) {
	newEvent, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	evt := newEvent()
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, errors.Wrapf(err, "decode %s", t)
	}
	return evt, nil
}

// Types lists every decodable event type in lexical order.
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
