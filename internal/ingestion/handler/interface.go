package handler

import (
	"context"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

// EventHandlerInterface defines the common interface for event handlers
type EventHandlerInterface interface {
	// HandleEvent processes an event
	HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error
}

// LeadService is the slice of the lead use case driven by stream events
type LeadService interface {
	Intake(ctx context.Context, submission model.Submission) (*model.Lead, error)
	TransitionStatus(ctx context.Context, req model.StatusChangeRequest) (*model.Lead, error)
}

// Ensure the handler implements the interface
var _ EventHandlerInterface = (*LeadHandler)(nil)
