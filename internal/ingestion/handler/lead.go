package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/tenant"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// LeadHandler turns stream events into lead use case calls and classifies
// failures as retryable or fatal for the consumer.
type LeadHandler struct {
	service LeadService
}

// NewLeadHandler creates a new lead event handler
func NewLeadHandler(service LeadService) *LeadHandler {
	return &LeadHandler{
		service: service,
	}
}

// HandleEvent processes lead events
func (h *LeadHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	ctx = tenant.WithRequestID(ctx, uuid.NewString())
	log := logger.FromContext(ctx)
	log.Debug("Processing lead event", zap.String("type", string(eventType)))

	switch eventType {
	case model.V1LeadSubmissions:
		return h.handleSubmission(ctx, metadata, rawEvent)
	case model.V1LeadStatusChanges:
		return h.handleStatusChange(ctx, rawEvent)
	default:
		log.Error("Unsupported lead event type", zap.String("eventType", string(eventType)))
		return apperrors.NewFatal(fmt.Errorf("%w: unsupported lead event type: %s", apperrors.ErrBadRequest, eventType), "unsupported lead event type")
	}
}

// handleSubmission runs intake. Every failure is fatal: a redelivery after
// an ambiguous write could create the lead twice.
func (h *LeadHandler) handleSubmission(ctx context.Context, metadata *model.MessageMetadata, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var submission model.Submission
	if err := json.Unmarshal(rawEvent, &submission); err != nil {
		log.Error("Failed to unmarshal submission", zap.Error(err))
		return apperrors.NewFatal(fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err), "failed to unmarshal submission")
	}
	if submission.OrganizationID == "" {
		submission.OrganizationID = metadata.OrganizationID
	}

	lead, err := h.service.Intake(ctx, submission)
	if err != nil {
		return apperrors.NewFatal(err, "intake failed for landing page %s", submission.LandingPageID)
	}
	log.Info("Submission ingested", zap.String("lead_id", lead.ID), zap.String("temperature", string(lead.Temperature)))
	return nil
}

// handleStatusChange applies a status change. Storage errors are retryable
// because repeating an applied change is a no-op.
func (h *LeadHandler) handleStatusChange(ctx context.Context, rawEvent []byte) error {
	log := logger.FromContext(ctx)

	var req model.StatusChangeRequest
	if err := json.Unmarshal(rawEvent, &req); err != nil {
		log.Error("Failed to unmarshal status change", zap.Error(err))
		return apperrors.NewFatal(fmt.Errorf("%w: %w", apperrors.ErrBadRequest, err), "failed to unmarshal status change")
	}
	if req.ActorType == "" {
		req.ActorType = model.ActorAutomation
	}

	lead, err := h.service.TransitionStatus(ctx, req)
	if err != nil {
		if isRetryableTransitionError(err) {
			return apperrors.NewRetryable(err, "status change for lead %s", req.LeadID)
		}
		return apperrors.NewFatal(err, "status change for lead %s", req.LeadID)
	}
	log.Info("Status change applied", zap.String("lead_id", lead.ID), zap.String("status", string(lead.Status)))
	return nil
}

func isRetryableTransitionError(err error) bool {
	switch {
	case apperrors.IsInvalidTransition(err):
		return false
	case errors.Is(err, apperrors.ErrStorageFailure),
		errors.Is(err, apperrors.ErrConflict),
		errors.Is(err, apperrors.ErrDatabase),
		errors.Is(err, apperrors.ErrTimeout):
		return true
	default:
		return false
	}
}
