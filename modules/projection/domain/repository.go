package domain

import (
	"context"
	"iter"
	"time"
)

// UnitOfWork is implemented by stores that keep their own state outside the
// database transaction. InTx applies the writes made through the ctx handed
// to fn only when fn returns nil; nested calls join the outer unit.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository is the transactional read-model store. Implementations pick the
// transaction up from ctx (see composables.UseTx). Lookups of a single entity
// return an error wrapping ErrNotFound when it does not exist.
type Repository interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	GetRole(ctx context.Context, id string) (Role, error)
	GetFunction(ctx context.Context, id string) (Function, error)
	GetTag(ctx context.Context, id string) (Tag, error)

	CreateProfile(ctx context.Context, profile Profile) error
	UpdateProfile(ctx context.Context, profile Profile) error
	CreateRole(ctx context.Context, role Role) error
	UpdateRole(ctx context.Context, role Role) error
	CreateFunction(ctx context.Context, function Function) error
	UpdateFunction(ctx context.Context, function Function) error
	CreateTag(ctx context.Context, tag Tag) error

	DeleteProfile(ctx context.Context, id string) error
	DeleteRole(ctx context.Context, id string) error
	DeleteFunction(ctx context.Context, id string) error
	DeleteTag(ctx context.Context, id string) error

	AddTagToProfile(ctx context.Context, profileID string, tags []TagAssignment) error
	AddTagToRole(ctx context.Context, roleID string, tags []TagAssignment) error
	RemoveTagFromProfile(ctx context.Context, profileID string, tagIDs []string) error
	RemoveTagFromRole(ctx context.Context, roleID string, tagIDs []string) error
	GetTagsAssignmentsFromProfile(ctx context.Context, tagIDs []string, profileID string) ([]TagAssignment, error)
	GetTagsAssignmentsFromRole(ctx context.Context, tagIDs []string, roleID string) ([]TagAssignment, error)
	GetAssignedObjectsFromTag(ctx context.Context, tagID string) ([]ObjectIdent, error)

	CreateProfileAssignment(ctx context.Context, assignment Assignment) error
	DeleteProfileAssignment(ctx context.Context, assignment Assignment) error

	// GetAllChildren returns every direct and indirect member of container.
	GetAllChildren(ctx context.Context, container ObjectIdent) ([]FirstLevelRelationProfile, error)
	// GetParents returns the direct containers of the profile.
	GetParents(ctx context.Context, profileID string) ([]Container, error)
	GetContainerMembers(ctx context.Context, container ObjectIdent) ([]ObjectIdent, error)
	// GetDifferenceInParentsTrees streams, for every profile affected by
	// attaching childIDs below parentID (the children and all their
	// descendants), the edges missing from that profile's ancestor tree.
	GetDifferenceInParentsTrees(ctx context.Context, parentID string, childIDs []string) iter.Seq2[ParentsTreeDifferenceResult, error]
	GetAllRelevantObjectsBecauseOfPropertyChanged(ctx context.Context, object ObjectIdent) ([]ObjectIdentPath, error)

	SetClientSettings(ctx context.Context, profileID string, settings []ClientSetting) error
	DeleteClientSetting(ctx context.Context, profileID, key string) error
	// GetCalculatedClientSettings returns every candidate setting visible
	// from profileID, including the ones inherited from its ancestors.
	GetCalculatedClientSettings(ctx context.Context, profileID string) ([]ClientSetting, error)
	GetCalculatedClientSettingKeys(ctx context.Context, profileID string) ([]string, error)
	SaveCalculatedClientSettings(ctx context.Context, profileID string, settings []ClientSetting) error

	OrganizationExists(ctx context.Context, externalID, name, displayName string) (bool, error)
	SetUpdatedAt(ctx context.Context, updatedAt time.Time, ids []string) error
	SaveProjectionState(ctx context.Context, state ProjectionState) error
}
