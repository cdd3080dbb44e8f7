package serrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

func TestBaseError_IsMatchesWrapped(t *testing.T) {
	sentinel := NewError("X_CODE", "something broke", "")
	wrapped := fmt.Errorf("%w: detail", sentinel)

	require.ErrorIs(t, wrapped, sentinel)
	var be *BaseError
	require.ErrorAs(t, wrapped, &be)
	require.Equal(t, "X_CODE", be.Code)
}

func TestProcessValidatorErrors(t *testing.T) {
	type payload struct {
		ID   string   `validate:"required"`
		Tags []string `validate:"min=1"`
	}
	err := validator.New().Struct(payload{})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	out := ProcessValidatorErrors(verrs, nil)
	require.Equal(t, "is required", out["payload.ID"])
	require.Equal(t, "must contain at least 1 item(s)", out["payload.Tags"])
	require.Equal(t, "payload.ID: is required; payload.Tags: must contain at least 1 item(s)", out.Error())
}
