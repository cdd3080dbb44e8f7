package domain

import (
	"fmt"
	"time"
)

type ContainerType string

const (
	ContainerTypeGroup        ContainerType = "Group"
	ContainerTypeOrganization ContainerType = "Organization"
	ContainerTypeRole         ContainerType = "Role"
	ContainerTypeFunction     ContainerType = "Function"
)

func ContainerTypeOf(t ObjectType) (ContainerType, error) {
	if !t.IsContainer() {
		return "", fmt.Errorf("%w: %s is not a container type", ErrUnsupportedType, t)
	}
	return ContainerType(t), nil
}

func (t ContainerType) ObjectType() ObjectType {
	return ObjectType(t)
}

// IsProfile reports whether the container is itself a profile (group or organization).
func (t ContainerType) IsProfile() bool {
	return t == ContainerTypeGroup || t == ContainerTypeOrganization
}

// Container is anything that can own members.
type Container struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Type   ContainerType `json:"type"`
	Weight float64       `json:"weight,omitempty"`
}

func (c Container) Ident() ObjectIdent {
	return ObjectIdent{ID: c.ID, Type: c.Type.ObjectType()}
}

type Role struct {
	ID                string               `json:"id"`
	Name              string               `json:"name"`
	Description       string               `json:"description,omitempty"`
	Permissions       []string             `json:"permissions,omitempty"`
	DeniedPermissions []string             `json:"denied_permissions,omitempty"`
	IsSystem          bool                 `json:"is_system,omitempty"`
	Source            string               `json:"source,omitempty"`
	ExternalIDs       []ExternalIdentifier `json:"external_ids,omitempty"`
	Tags              []TagAssignment      `json:"tags,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
	SynchronizedAt    *time.Time           `json:"synchronized_at,omitempty"`
}

func (r Role) Container() Container {
	return Container{ID: r.ID, Name: r.Name, Type: ContainerTypeRole}
}

// Function binds an organization to a role.
type Function struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	OrganizationID string               `json:"organization_id"`
	RoleID         string               `json:"role_id"`
	Source         string               `json:"source,omitempty"`
	ExternalIDs    []ExternalIdentifier `json:"external_ids,omitempty"`
	Tags           []TagAssignment      `json:"tags,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
	SynchronizedAt *time.Time           `json:"synchronized_at,omitempty"`
}

func (f Function) Container() Container {
	return Container{ID: f.ID, Name: f.Name, Type: ContainerTypeFunction}
}
