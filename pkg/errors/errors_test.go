package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispositionErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"invalid state", ErrInvalidState("position is confirmed"), CodeInvalidState, http.StatusConflict},
		{"direction mismatch", ErrDirectionMismatch("import load"), CodeDirectionMismatch, http.StatusUnprocessableEntity},
		{"already assigned", ErrAlreadyAssigned("load in P1"), CodeAlreadyAssigned, http.StatusConflict},
		{"empty position", ErrEmptyPosition("no loads"), CodeEmptyPosition, http.StatusUnprocessableEntity},
		{"not found", ErrNotFound("position"), CodeNotFound, http.StatusNotFound},
		{"validation", ErrValidation("bad type"), CodeValidationError, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus)
		})
	}
}

func TestAppError_WrapAndUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	appErr := ErrInternal("").Wrap(cause)

	assert.ErrorIs(t, appErr, cause)
	assert.Contains(t, appErr.Error(), "boom")
	assert.Equal(t, "an internal error occurred", appErr.Message)
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	notFound := ErrNotFoundWithID("position", "P1")
	wrapped := fmt.Errorf("lookup: %w", notFound)

	got := FromError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeNotFound, got.Code)
	assert.Equal(t, "P1", got.Details["id"])

	plain := FromError(stderrors.New("disk full"))
	assert.Equal(t, CodeInternalError, plain.Code)
}

func TestStatusFor_UnknownCodeIsInternal(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusFor(CodeAlreadyAssigned))
	assert.Equal(t, http.StatusInternalServerError, StatusFor("SOMETHING_ELSE"))
}
