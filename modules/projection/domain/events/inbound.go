package events

import (
	"encoding/json"

	"github.com/iota-uz/profile-projection/modules/projection/domain"
)

// Type identifies an inbound domain event.
type Type string

const (
	TypeUserCreated              Type = "profile.user_created.v2"
	TypeGroupCreated             Type = "profile.group_created.v1"
	TypeOrganizationCreated      Type = "profile.organization_created.v1"
	TypeProfileDeleted           Type = "profile.deleted.v1"
	TypeProfilePropertiesChanged Type = "profile.properties_changed.v1"
	TypeProfileTagsAdded         Type = "profile.tags_added.v1"
	TypeProfileTagsRemoved       Type = "profile.tags_removed.v1"

	TypeProfileClientSettingsSet      Type = "profile.client_settings_set.v1"
	TypeProfileClientSettingsSetBatch Type = "profile.client_settings_set_batch.v1"
	TypeProfileClientSettingsDeleted  Type = "profile.client_settings_deleted.v1"

	TypeRoleCreated           Type = "role.created.v1"
	TypeRoleDeleted           Type = "role.deleted.v1"
	TypeRolePropertiesChanged Type = "role.properties_changed.v1"
	TypeRoleTagsAdded         Type = "role.tags_added.v1"
	TypeRoleTagsRemoved       Type = "role.tags_removed.v1"

	TypeFunctionCreated           Type = "function.created.v2"
	TypeFunctionDeleted           Type = "function.deleted.v1"
	TypeFunctionPropertiesChanged Type = "function.properties_changed.v1"

	TypeTagCreated Type = "tag.created.v1"
	TypeTagDeleted Type = "tag.deleted.v1"

	TypeObjectAssignment Type = "assignment.object_assignment.v1"
)

// DomainEvent is an inbound write-side event.
type DomainEvent interface {
	Type() Type
	Meta() Metadata
}

type UserCreated struct {
	Metadata
	ID          string                      `json:"id" validate:"notblank"`
	Name        string                      `json:"name"`
	DisplayName string                      `json:"display_name"`
	FirstName   string                      `json:"first_name"`
	LastName    string                      `json:"last_name"`
	Email       string                      `json:"email"`
	ExternalIDs []domain.ExternalIdentifier `json:"external_ids,omitempty"`
	Source      string                      `json:"source"`
	Tags        []domain.TagAssignment      `json:"tags,omitempty" validate:"dive"`
}

func (*UserCreated) Type() Type { return TypeUserCreated }

type GroupCreated struct {
	Metadata
	ID          string                        `json:"id" validate:"notblank"`
	Name        string                        `json:"name" validate:"required"`
	DisplayName string                        `json:"display_name"`
	Weight      float64                       `json:"weight"`
	IsSystem    bool                          `json:"is_system"`
	ExternalIDs []domain.ExternalIdentifier   `json:"external_ids,omitempty"`
	Source      string                        `json:"source"`
	Tags        []domain.TagAssignment        `json:"tags,omitempty" validate:"dive"`
	Members     []domain.ConditionObjectIdent `json:"members,omitempty" validate:"dive"`
}

func (*GroupCreated) Type() Type { return TypeGroupCreated }

type OrganizationCreated struct {
	Metadata
	ID          string                        `json:"id" validate:"notblank"`
	Name        string                        `json:"name"`
	DisplayName string                        `json:"display_name"`
	Weight      float64                       `json:"weight"`
	ExternalIDs []domain.ExternalIdentifier   `json:"external_ids,omitempty"`
	Source      string                        `json:"source"`
	Tags        []domain.TagAssignment        `json:"tags,omitempty" validate:"dive"`
	Members     []domain.ConditionObjectIdent `json:"members,omitempty" validate:"dive"`
}

func (*OrganizationCreated) Type() Type { return TypeOrganizationCreated }

// LockKey is the soft identity organizations must be unique by.
func (e *OrganizationCreated) LockKey() string {
	for _, ext := range e.ExternalIDs {
		if ext.ID != "" {
			return "organization:external:" + ext.ID
		}
	}
	if e.Name != "" {
		return "organization:name:" + e.Name
	}
	return "organization:display_name:" + e.DisplayName
}

func (e *OrganizationCreated) FirstExternalID() string {
	for _, ext := range e.ExternalIDs {
		if ext.ID != "" {
			return ext.ID
		}
	}
	return ""
}

type ProfileDeleted struct {
	Metadata
	ID   string             `json:"id" validate:"notblank"`
	Kind domain.ProfileKind `json:"kind" validate:"required,oneof=User Group Organization"`
}

func (*ProfileDeleted) Type() Type { return TypeProfileDeleted }

type ProfilePropertiesChanged struct {
	Metadata
	ID         string             `json:"id" validate:"notblank"`
	Kind       domain.ProfileKind `json:"kind" validate:"required,oneof=User Group Organization"`
	Properties map[string]any     `json:"properties" validate:"min=1"`
}

func (*ProfilePropertiesChanged) Type() Type { return TypeProfilePropertiesChanged }

type ProfileTagsAdded struct {
	Metadata
	ID   string                 `json:"id" validate:"notblank"`
	Kind domain.ProfileKind     `json:"kind" validate:"required,oneof=User Group Organization"`
	Tags []domain.TagAssignment `json:"tags" validate:"min=1,dive"`
}

func (*ProfileTagsAdded) Type() Type { return TypeProfileTagsAdded }

type ProfileTagsRemoved struct {
	Metadata
	ID     string             `json:"id" validate:"notblank"`
	Kind   domain.ProfileKind `json:"kind" validate:"required,oneof=User Group Organization"`
	TagIDs []string           `json:"tag_ids" validate:"min=1,dive,notblank"`
}

func (*ProfileTagsRemoved) Type() Type { return TypeProfileTagsRemoved }

type ProfileClientSettingsSet struct {
	Metadata
	ProfileID string             `json:"profile_id" validate:"notblank"`
	Kind      domain.ProfileKind `json:"kind" validate:"required,oneof=User Group Organization"`
	Key       string             `json:"key" validate:"notblank"`
	Value     json.RawMessage    `json:"value" validate:"required"`
}

func (*ProfileClientSettingsSet) Type() Type { return TypeProfileClientSettingsSet }

type ProfileClientSettingsSetBatch struct {
	Metadata
	Resources []domain.ObjectIdent `json:"resources" validate:"min=1,dive"`
	Key       string               `json:"key" validate:"notblank"`
	Value     json.RawMessage      `json:"value" validate:"required"`
}

func (*ProfileClientSettingsSetBatch) Type() Type { return TypeProfileClientSettingsSetBatch }

type ProfileClientSettingsDeleted struct {
	Metadata
	ProfileID string             `json:"profile_id" validate:"notblank"`
	Kind      domain.ProfileKind `json:"kind" validate:"required,oneof=User Group Organization"`
	Key       string             `json:"key" validate:"notblank"`
}

func (*ProfileClientSettingsDeleted) Type() Type { return TypeProfileClientSettingsDeleted }

type RoleCreated struct {
	Metadata
	ID                string                      `json:"id" validate:"notblank"`
	Name              string                      `json:"name" validate:"required"`
	Description       string                      `json:"description"`
	Permissions       []string                    `json:"permissions,omitempty"`
	DeniedPermissions []string                    `json:"denied_permissions,omitempty"`
	IsSystem          bool                        `json:"is_system"`
	ExternalIDs       []domain.ExternalIdentifier `json:"external_ids,omitempty"`
	Source            string                      `json:"source"`
	Tags              []domain.TagAssignment      `json:"tags,omitempty" validate:"dive"`
}

func (*RoleCreated) Type() Type { return TypeRoleCreated }

type RoleDeleted struct {
	Metadata
	ID string `json:"id" validate:"notblank"`
}

func (*RoleDeleted) Type() Type { return TypeRoleDeleted }

type RolePropertiesChanged struct {
	Metadata
	ID         string         `json:"id" validate:"notblank"`
	Properties map[string]any `json:"properties" validate:"min=1"`
}

func (*RolePropertiesChanged) Type() Type { return TypeRolePropertiesChanged }

type RoleTagsAdded struct {
	Metadata
	ID   string                 `json:"id" validate:"notblank"`
	Tags []domain.TagAssignment `json:"tags" validate:"min=1,dive"`
}

func (*RoleTagsAdded) Type() Type { return TypeRoleTagsAdded }

type RoleTagsRemoved struct {
	Metadata
	ID     string   `json:"id" validate:"notblank"`
	TagIDs []string `json:"tag_ids" validate:"min=1,dive,notblank"`
}

func (*RoleTagsRemoved) Type() Type { return TypeRoleTagsRemoved }

type FunctionCreated struct {
	Metadata
	ID           string                      `json:"id" validate:"notblank"`
	Name         string                      `json:"name"`
	Organization domain.ObjectIdent          `json:"organization"`
	Role         domain.ObjectIdent          `json:"role"`
	ExternalIDs  []domain.ExternalIdentifier `json:"external_ids,omitempty"`
	Source       string                      `json:"source"`
	Tags         []domain.TagAssignment      `json:"tags,omitempty" validate:"dive"`
}

func (*FunctionCreated) Type() Type { return TypeFunctionCreated }

type FunctionDeleted struct {
	Metadata
	ID string `json:"id" validate:"notblank"`
}

func (*FunctionDeleted) Type() Type { return TypeFunctionDeleted }

type FunctionPropertiesChanged struct {
	Metadata
	ID         string         `json:"id" validate:"notblank"`
	Properties map[string]any `json:"properties" validate:"min=1"`
}

func (*FunctionPropertiesChanged) Type() Type { return TypeFunctionPropertiesChanged }

type TagCreated struct {
	Metadata
	ID      string         `json:"id" validate:"notblank"`
	Name    string         `json:"name" validate:"required"`
	TagType domain.TagType `json:"tag_type"`
}

func (*TagCreated) Type() Type { return TypeTagCreated }

type TagDeleted struct {
	Metadata
	ID string `json:"id" validate:"notblank"`
}

func (*TagDeleted) Type() Type { return TypeTagDeleted }

type AssignmentType string

const (
	// AssignmentChildrenToParent: Resource is the container, entries are members.
	AssignmentChildrenToParent AssignmentType = "ChildrenToParent"
	// AssignmentParentsToChild: Resource is the member, entries are containers.
	AssignmentParentsToChild AssignmentType = "ParentsToChild"
)

type ObjectAssignment struct {
	Metadata
	Resource       domain.ObjectIdent            `json:"resource"`
	AssignmentType AssignmentType                `json:"assignment_type" validate:"required,oneof=ChildrenToParent ParentsToChild"`
	Added          []domain.ConditionObjectIdent `json:"added,omitempty" validate:"dive"`
	Removed        []domain.ConditionObjectIdent `json:"removed,omitempty" validate:"dive"`
}

func (*ObjectAssignment) Type() Type { return TypeObjectAssignment }
