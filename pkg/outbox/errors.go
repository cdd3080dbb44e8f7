package outbox

import (
	"fmt"

	"github.com/iota-uz/profile-projection/pkg/serrors"
)

var (
	ErrInvalidConfig  = serrors.NewError("OUTBOX_INVALID_CONFIG", "invalid outbox configuration", "")
	ErrInvalidMessage = serrors.NewError("OUTBOX_INVALID_MESSAGE", "invalid outbox message", "")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}

func invalidMessage(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidMessage}, args...)...)
}
