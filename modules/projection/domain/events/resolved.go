package events

import (
	"encoding/json"
	"time"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

// ResolvedType identifies an event written to a read-model stream.
type ResolvedType string

const (
	ResolvedEntityDeleted    ResolvedType = "EntityDeleted"
	ResolvedContainerDeleted ResolvedType = "ContainerDeleted"
	ResolvedMemberAdded      ResolvedType = "MemberAdded"
	ResolvedMemberRemoved    ResolvedType = "MemberRemoved"
	ResolvedMemberDeleted    ResolvedType = "MemberDeleted"

	ResolvedProfileCreated  ResolvedType = "ProfileCreated"
	ResolvedRoleCreated     ResolvedType = "RoleCreated"
	ResolvedFunctionCreated ResolvedType = "FunctionCreated"
	ResolvedTagCreated      ResolvedType = "TagCreated"

	ResolvedWasAssignedToGroup        ResolvedType = "WasAssignedToGroup"
	ResolvedWasAssignedToOrganization ResolvedType = "WasAssignedToOrganization"
	ResolvedWasAssignedToRole         ResolvedType = "WasAssignedToRole"
	ResolvedWasAssignedToFunction     ResolvedType = "WasAssignedToFunction"
	ResolvedWasUnassignedFrom         ResolvedType = "WasUnassignedFrom"

	ResolvedTagsAdded         ResolvedType = "TagsAdded"
	ResolvedTagsRemoved       ResolvedType = "TagsRemoved"
	ResolvedPropertiesChanged ResolvedType = "PropertiesChanged"

	ResolvedClientSettingsSet         ResolvedType = "ClientSettingsSet"
	ResolvedClientSettingsCalculated  ResolvedType = "ClientSettingsCalculated"
	ResolvedClientSettingsInvalidated ResolvedType = "ClientSettingsInvalidated"
)

// ResolvedMetadata is stamped by the tuple builder.
type ResolvedMetadata struct {
	EventID         string    `json:"event_id" validate:"notblank"`
	CorrelationID   string    `json:"correlation_id" validate:"notblank"`
	CausationID     string    `json:"causation_id" validate:"notblank"`
	Timestamp       time.Time `json:"timestamp" validate:"required"`
	Initiator       Initiator `json:"initiator"`
	RelatedEntityID string    `json:"related_entity_id" validate:"notblank"`
}

func (m *ResolvedMetadata) Metadata() *ResolvedMetadata { return m }

// ResolvedEvent is a read-model event. Implementations are pointer structs
// embedding ResolvedMetadata.
type ResolvedEvent interface {
	ResolvedType() ResolvedType
	Metadata() *ResolvedMetadata
}

type EntityDeleted struct {
	ResolvedMetadata
	ID         string            `json:"id" validate:"notblank"`
	ObjectType domain.ObjectType `json:"object_type" validate:"required"`
}

func (*EntityDeleted) ResolvedType() ResolvedType { return ResolvedEntityDeleted }

type ContainerDeleted struct {
	ResolvedMetadata
	Container domain.Container `json:"container"`
	MemberID  string           `json:"member_id" validate:"notblank"`
}

func (*ContainerDeleted) ResolvedType() ResolvedType { return ResolvedContainerDeleted }

type Member struct {
	ID         string                  `json:"id" validate:"notblank"`
	Type       domain.ObjectType       `json:"type" validate:"required"`
	Name       string                  `json:"name,omitempty"`
	Conditions []domain.RangeCondition `json:"conditions,omitempty"`
}

type MemberAdded struct {
	ResolvedMetadata
	Container domain.Container `json:"container"`
	Member    Member           `json:"member"`
}

func (*MemberAdded) ResolvedType() ResolvedType { return ResolvedMemberAdded }

type MemberRemoved struct {
	ResolvedMetadata
	Container  domain.Container        `json:"container"`
	MemberID   string                  `json:"member_id" validate:"notblank"`
	Conditions []domain.RangeCondition `json:"conditions,omitempty"`
}

func (*MemberRemoved) ResolvedType() ResolvedType { return ResolvedMemberRemoved }

type MemberDeleted struct {
	ResolvedMetadata
	ContainerID string            `json:"container_id" validate:"notblank"`
	MemberID    string            `json:"member_id" validate:"notblank"`
	MemberType  domain.ObjectType `json:"member_type" validate:"required"`
}

func (*MemberDeleted) ResolvedType() ResolvedType { return ResolvedMemberDeleted }

type ProfileProjected struct {
	ResolvedMetadata
	Profile domain.Profile `json:"profile"`
}

func (*ProfileProjected) ResolvedType() ResolvedType { return ResolvedProfileCreated }

type RoleProjected struct {
	ResolvedMetadata
	Role domain.Role `json:"role"`
}

func (*RoleProjected) ResolvedType() ResolvedType { return ResolvedRoleCreated }

type FunctionProjected struct {
	ResolvedMetadata
	Function domain.Function `json:"function"`
}

func (*FunctionProjected) ResolvedType() ResolvedType { return ResolvedFunctionCreated }

type TagProjected struct {
	ResolvedMetadata
	Tag domain.Tag `json:"tag"`
}

func (*TagProjected) ResolvedType() ResolvedType { return ResolvedTagCreated }

// Assigned is the payload shared by the WasAssignedTo variants: ProfileID
// became a direct or indirect member of Target.
type Assigned struct {
	ProfileID  string                  `json:"profile_id" validate:"notblank"`
	Target     domain.Container        `json:"target"`
	Via        string                  `json:"via,omitempty"`
	Conditions []domain.RangeCondition `json:"conditions,omitempty"`
}

type WasAssignedToGroup struct {
	ResolvedMetadata
	Assigned
}

func (*WasAssignedToGroup) ResolvedType() ResolvedType { return ResolvedWasAssignedToGroup }

type WasAssignedToOrganization struct {
	ResolvedMetadata
	Assigned
}

func (*WasAssignedToOrganization) ResolvedType() ResolvedType {
	return ResolvedWasAssignedToOrganization
}

type WasAssignedToRole struct {
	ResolvedMetadata
	Assigned
}

func (*WasAssignedToRole) ResolvedType() ResolvedType { return ResolvedWasAssignedToRole }

type WasAssignedToFunction struct {
	ResolvedMetadata
	Assigned
}

func (*WasAssignedToFunction) ResolvedType() ResolvedType { return ResolvedWasAssignedToFunction }

type WasUnassignedFrom struct {
	ResolvedMetadata
	ProfileID  string                  `json:"profile_id" validate:"notblank"`
	Container  domain.Container        `json:"container"`
	Conditions []domain.RangeCondition `json:"conditions,omitempty"`
}

func (*WasUnassignedFrom) ResolvedType() ResolvedType { return ResolvedWasUnassignedFrom }

type TagsAdded struct {
	ResolvedMetadata
	Object domain.ObjectIdent     `json:"object"`
	Tags   []domain.TagAssignment `json:"tags" validate:"min=1,dive"`
}

func (*TagsAdded) ResolvedType() ResolvedType { return ResolvedTagsAdded }

type TagsRemoved struct {
	ResolvedMetadata
	Object domain.ObjectIdent `json:"object"`
	TagIDs []string           `json:"tag_ids" validate:"min=1,dive,notblank"`
}

func (*TagsRemoved) ResolvedType() ResolvedType { return ResolvedTagsRemoved }

type PropertiesChanged struct {
	ResolvedMetadata
	Object         domain.ObjectIdent    `json:"object"`
	Source         domain.ObjectIdent    `json:"source"`
	RelatedContext domain.RelatedContext `json:"related_context" validate:"required"`
	Properties     map[string]any        `json:"properties" validate:"min=1"`
}

func (*PropertiesChanged) ResolvedType() ResolvedType { return ResolvedPropertiesChanged }

type ClientSettingsSet struct {
	ResolvedMetadata
	ProfileID string          `json:"profile_id" validate:"notblank"`
	Key       string          `json:"key" validate:"notblank"`
	Value     json.RawMessage `json:"value"`
}

func (*ClientSettingsSet) ResolvedType() ResolvedType { return ResolvedClientSettingsSet }

type ClientSettingsCalculated struct {
	ResolvedMetadata
	ProfileID string                 `json:"profile_id" validate:"notblank"`
	Settings  []domain.ClientSetting `json:"settings"`
}

func (*ClientSettingsCalculated) ResolvedType() ResolvedType {
	return ResolvedClientSettingsCalculated
}

type ClientSettingsInvalidated struct {
	ResolvedMetadata
	ProfileID string   `json:"profile_id" validate:"notblank"`
	Keys      []string `json:"keys"`
}

func (*ClientSettingsInvalidated) ResolvedType() ResolvedType {
	return ResolvedClientSettingsInvalidated
}
