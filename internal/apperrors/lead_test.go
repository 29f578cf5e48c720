package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingFieldError(t *testing.T) {
	err := NewMissingField("organization_id")

	assert.ErrorIs(t, err, ErrMissingField)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "organization_id")

	var mf *MissingFieldError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &mf))
	assert.Equal(t, "organization_id", mf.Field)
}

func TestDomainNotFoundErrorsAreNotFound(t *testing.T) {
	for _, err := range []error{ErrOrganizationNotFound, ErrLandingPageNotFound, ErrLeadNotFound} {
		assert.True(t, IsNotFoundError(err), err.Error())
	}
	assert.NotErrorIs(t, ErrOrganizationNotFound, ErrLandingPageNotFound)
	assert.True(t, IsBadRequestError(ErrInsufficientContact))
}

func TestInvalidTransitionError(t *testing.T) {
	err := error(&InvalidTransitionError{Current: "converted", Requested: "lost"})

	assert.True(t, IsInvalidTransition(err))
	assert.True(t, IsConflictError(err))
	assert.Contains(t, err.Error(), "converted -> lost")
	assert.Contains(t, err.Error(), "allowed: none")

	err = &InvalidTransitionError{Current: "new", Requested: "converted", Allowed: []string{"contacted", "lost"}}
	assert.Contains(t, err.Error(), "allowed: contacted, lost")
}

func TestStorageFailureError(t *testing.T) {
	cause := fmt.Errorf("%w: connection reset", ErrDatabase)
	err := NewStorageFailure("create_lead", cause)

	assert.True(t, IsStorageFailure(err))
	assert.True(t, IsDatabaseError(err))
	assert.Contains(t, err.Error(), "create_lead")
	assert.Nil(t, NewStorageFailure("noop", nil))
}

func TestRetryableAndFatalWrappers(t *testing.T) {
	r := NewRetryable(ErrDatabase, "save lead %s", "abc")
	assert.True(t, IsRetryable(r))
	assert.False(t, IsFatal(r))
	assert.ErrorIs(t, r, ErrDatabase)
	assert.Contains(t, r.Error(), "save lead abc")

	f := NewFatal(ErrInsufficientContact, "intake")
	assert.True(t, IsFatal(f))
	assert.ErrorIs(t, f, ErrBadRequest)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"missing field", NewMissingField("landing_page_id"), http.StatusBadRequest},
		{"insufficient contact", ErrInsufficientContact, http.StatusBadRequest},
		{"validation", fmt.Errorf("%w: bad note", ErrValidation), http.StatusBadRequest},
		{"organization", ErrOrganizationNotFound, http.StatusNotFound},
		{"landing page", ErrLandingPageNotFound, http.StatusNotFound},
		{"transition", &InvalidTransitionError{Current: "new", Requested: "converted"}, http.StatusConflict},
		{"storage", NewStorageFailure("create_lead", errors.New("boom")), http.StatusServiceUnavailable},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTypeRetryable, Classify(NewRetryable(ErrDatabase, "transition")))
	assert.Equal(t, ErrorTypeFatal, Classify(NewFatal(ErrInsufficientContact, "intake")))
	assert.Equal(t, ErrorTypeFatal, Classify(errors.New("unclassified")))
}
