package domain

import "github.com/iota-uz/profile-projection/pkg/serrors"

var (
	ErrValidation      = serrors.NewError("PROJECTION_VALIDATION", "invalid event", "")
	ErrNotFound        = serrors.NewError("PROJECTION_NOT_FOUND", "not found", "")
	ErrAlreadyExists   = serrors.NewError("PROJECTION_ALREADY_EXISTS", "already exists", "")
	ErrUnsupportedType = serrors.NewError("PROJECTION_UNSUPPORTED_TYPE", "unsupported type", "")
	ErrNothingToRemove = serrors.NewError("PROJECTION_NOTHING_TO_REMOVE", "nothing found to remove", "")
)
