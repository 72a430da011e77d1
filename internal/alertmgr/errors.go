package alertmgr

import (
	"errors"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/types"
)

// NotFoundError reports an operation against an unknown alert ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("alert %s not found", e.ID)
}

// InvalidStateError reports a lifecycle operation that the alert's
// current status does not permit.
type InvalidStateError struct {
	ID     string
	Status types.Status
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s alert %s in status %s", e.Op, e.ID, e.Status)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsInvalidState reports whether err wraps an InvalidStateError.
func IsInvalidState(err error) bool {
	var is *InvalidStateError
	return errors.As(err, &is)
}
