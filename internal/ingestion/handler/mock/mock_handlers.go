package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/smilefunnel/api/lead-engine/internal/ingestion/handler"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

// MockLeadHandler is a mock for the EventHandlerInterface
type MockLeadHandler struct {
	mock.Mock
}

// HandleEvent mocks the HandleEvent method
func (m *MockLeadHandler) HandleEvent(ctx context.Context, eventType model.EventType, metadata *model.MessageMetadata, rawEvent []byte) error {
	args := m.Called(ctx, eventType, metadata, rawEvent)
	return args.Error(0)
}

// MockLeadService is a mock for the handler.LeadService interface
type MockLeadService struct {
	mock.Mock
}

// Intake mocks the Intake method
func (m *MockLeadService) Intake(ctx context.Context, submission model.Submission) (*model.Lead, error) {
	args := m.Called(ctx, submission)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// TransitionStatus mocks the TransitionStatus method
func (m *MockLeadService) TransitionStatus(ctx context.Context, req model.StatusChangeRequest) (*model.Lead, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

var (
	_ handler.EventHandlerInterface = (*MockLeadHandler)(nil)
	_ handler.LeadService           = (*MockLeadService)(nil)
)
