package application

import (
	"fmt"
	"net/http"

	"github.com/wms-platform/disposition-service/internal/domain"
	"github.com/wms-platform/disposition-service/pkg/errors"
)

// toAppError converts domain errors into AppErrors that keep the domain error
// as their cause. Infrastructure errors are returned wrapped but unmapped.
func toAppError(op string, err error) error {
	if err == nil || errors.IsAppError(err) {
		return err
	}

	msg := err.Error()
	switch domain.Reason(err) {
	case domain.ReasonNotFound:
		return errors.NewAppError(errors.CodeNotFound, msg, http.StatusNotFound).Wrap(err)
	case domain.ReasonInvalidState:
		return errors.ErrInvalidState(msg).Wrap(err)
	case domain.ReasonDirectionMismatch:
		return errors.ErrDirectionMismatch(msg).Wrap(err)
	case domain.ReasonAlreadyAssigned:
		return errors.ErrAlreadyAssigned(msg).Wrap(err)
	case domain.ReasonEmptyPosition:
		return errors.ErrEmptyPosition(msg).Wrap(err)
	case domain.ReasonInvalidInput:
		return errors.ErrValidation(msg).Wrap(err)
	case domain.ReasonConflict:
		return errors.ErrConflict(msg).Wrap(err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}
