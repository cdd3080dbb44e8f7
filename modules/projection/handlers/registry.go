package handlers

import "github.com/iota-uz/profile-projection/modules/projection/domain/events"

// Registry maps every supported inbound event type to its handler. Each
// handler runs inside Atomic.
func (c *Context) Registry() map[events.Type]Handler {
	registry := map[events.Type]Handler{
		events.TypeUserCreatedV1:                 c.UserCreatedV1(),
		events.TypeUserCreated:                   c.UserCreated(),
		events.TypeGroupCreated:                  c.GroupCreated(),
		events.TypeOrganizationCreated:           c.OrganizationCreated(),
		events.TypeProfileDeleted:                c.ProfileDeleted(),
		events.TypeProfilePropertiesChanged:      c.ProfilePropertiesChanged(),
		events.TypeProfileTagsAdded:              c.ProfileTagsAdded(),
		events.TypeProfileTagsRemoved:            c.ProfileTagsRemoved(),
		events.TypeProfileClientSettingsSet:      c.ProfileClientSettingsSet(),
		events.TypeProfileClientSettingsSetBatch: c.ProfileClientSettingsSetBatch(),
		events.TypeProfileClientSettingsDeleted:  c.ProfileClientSettingsDeleted(),
		events.TypeRoleCreated:                   c.RoleCreated(),
		events.TypeRoleDeleted:                   c.RoleDeleted(),
		events.TypeRolePropertiesChanged:         c.RolePropertiesChanged(),
		events.TypeRoleTagsAdded:                 c.RoleTagsAdded(),
		events.TypeRoleTagsRemoved:               c.RoleTagsRemoved(),
		events.TypeFunctionCreatedV1:             c.FunctionCreatedV1(),
		events.TypeFunctionCreated:               c.FunctionCreated(),
		events.TypeFunctionDeleted:               c.FunctionDeleted(),
		events.TypeFunctionPropertiesChanged:     c.FunctionPropertiesChanged(),
		events.TypeTagCreated:                    c.TagCreated(),
		events.TypeTagDeleted:                    c.TagDeleted(),
		events.TypeObjectAssignment:              c.ObjectAssignment(),
	}
	for t, h := range registry {
		registry[t] = c.atomic(h)
	}
	return registry
}
