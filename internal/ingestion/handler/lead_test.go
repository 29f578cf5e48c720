package handler_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/ingestion/handler"
	mockhandler "gitlab.com/smilefunnel/api/lead-engine/internal/ingestion/handler/mock"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/tenant"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

const testOrganizationID = "org_smiles"

func setupLeadHandlerTest(t *testing.T) (context.Context, *model.MessageMetadata, *mockhandler.MockLeadService, *handler.LeadHandler) {
	ctx := logger.WithLogger(context.Background(), zaptest.NewLogger(t))
	ctx = tenant.WithOrganizationID(ctx, testOrganizationID)
	metadata := &model.MessageMetadata{
		MessageID:      "nats-msg-1",
		MessageSubject: model.V1LeadSubmissions.ForOrganization(testOrganizationID),
		OrganizationID: testOrganizationID,
		Timestamp:      time.Now(),
		Stream:         "leads_stream",
		Consumer:       "lead_engine",
	}
	service := new(mockhandler.MockLeadService)
	return ctx, metadata, service, handler.NewLeadHandler(service)
}

func TestLeadHandler_Submission(t *testing.T) {
	ctx, metadata, service, h := setupLeadHandlerTest(t)

	submission := model.NewSubmission(&model.Submission{LandingPageID: "lp-1"})
	submission.OrganizationID = ""
	raw, err := json.Marshal(submission)
	require.NoError(t, err)

	service.On("Intake", mock.Anything, mock.MatchedBy(func(s model.Submission) bool {
		return s.OrganizationID == testOrganizationID && s.LandingPageID == "lp-1"
	})).Return(model.NewLead(), nil).Once()

	err = h.HandleEvent(ctx, model.V1LeadSubmissions, metadata, raw)
	assert.NoError(t, err)
	service.AssertExpectations(t)
}

func TestLeadHandler_SubmissionFailuresAreFatal(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{name: "missing contact", err: apperrors.ErrInsufficientContact, target: apperrors.ErrInsufficientContact},
		{name: "organization inactive", err: apperrors.ErrOrganizationNotFound, target: apperrors.ErrNotFound},
		{name: "storage failure", err: apperrors.NewStorageFailure("create_lead", apperrors.ErrDatabase), target: apperrors.ErrStorageFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, metadata, service, h := setupLeadHandlerTest(t)
			service.On("Intake", mock.Anything, mock.Anything).Return(nil, tt.err)

			err := h.HandleEvent(ctx, model.V1LeadSubmissions, metadata, []byte(`{"landing_page_id":"lp-1"}`))
			require.Error(t, err)
			assert.True(t, apperrors.IsFatal(err))
			assert.False(t, apperrors.IsRetryable(err))
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestLeadHandler_MalformedPayloadIsFatal(t *testing.T) {
	ctx, metadata, service, h := setupLeadHandlerTest(t)

	err := h.HandleEvent(ctx, model.V1LeadSubmissions, metadata, []byte(`{not json`))
	assert.True(t, apperrors.IsFatal(err))
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	service.AssertNotCalled(t, "Intake", mock.Anything, mock.Anything)

	metadata.MessageSubject = model.V1LeadStatusChanges.ForOrganization(testOrganizationID)
	err = h.HandleEvent(ctx, model.V1LeadStatusChanges, metadata, []byte(`[]`))
	assert.True(t, apperrors.IsFatal(err))
}

func TestLeadHandler_StatusChange(t *testing.T) {
	ctx, metadata, service, h := setupLeadHandlerTest(t)
	metadata.MessageSubject = model.V1LeadStatusChanges.ForOrganization(testOrganizationID)

	lead := model.NewLead(&model.Lead{ID: "lead-1", Status: model.LeadStatusContacted})
	service.On("TransitionStatus", mock.Anything, model.StatusChangeRequest{
		LeadID:    "lead-1",
		Status:    model.LeadStatusContacted,
		ActorType: model.ActorAutomation,
	}).Return(lead, nil).Once()

	err := h.HandleEvent(ctx, model.V1LeadStatusChanges, metadata, []byte(`{"lead_id":"lead-1","status":"contacted"}`))
	assert.NoError(t, err)
	service.AssertExpectations(t)
}

func TestLeadHandler_StatusChangeErrorClassification(t *testing.T) {
	invalid := &apperrors.InvalidTransitionError{Current: "new", Requested: "qualified", Allowed: []string{"contacted", "lost"}}

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "invalid transition", err: invalid, retryable: false},
		{name: "unknown lead", err: apperrors.ErrLeadNotFound, retryable: false},
		{name: "validation", err: apperrors.ErrValidation, retryable: false},
		{name: "version conflict", err: apperrors.ErrConflict, retryable: true},
		{name: "storage failure", err: apperrors.NewStorageFailure("transition_lead", apperrors.ErrDatabase), retryable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, metadata, service, h := setupLeadHandlerTest(t)
			service.On("TransitionStatus", mock.Anything, mock.Anything).Return(nil, tt.err)

			err := h.HandleEvent(ctx, model.V1LeadStatusChanges, metadata, []byte(`{"lead_id":"lead-1","status":"qualified"}`))
			require.Error(t, err)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
			assert.Equal(t, !tt.retryable, apperrors.IsFatal(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestLeadHandler_UnsupportedEventType(t *testing.T) {
	ctx, metadata, service, h := setupLeadHandlerTest(t)

	err := h.HandleEvent(ctx, model.V1LeadNotifications, metadata, []byte(`{}`))
	assert.True(t, apperrors.IsFatal(err))
	service.AssertNotCalled(t, "Intake", mock.Anything, mock.Anything)
	service.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything)
}
