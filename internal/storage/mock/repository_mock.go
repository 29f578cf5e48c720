package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/storage"
)

// --- OrganizationRepo Mock ---

// OrganizationRepoMock mocks the OrganizationRepo interface
type OrganizationRepoMock struct {
	mock.Mock
}

// FindByID mocks the FindByID method
func (m *OrganizationRepoMock) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Organization), args.Error(1)
}

// --- LandingPageRepo Mock ---

// LandingPageRepoMock mocks the LandingPageRepo interface
type LandingPageRepoMock struct {
	mock.Mock
}

// FindByID mocks the FindByID method
func (m *LandingPageRepoMock) FindByID(ctx context.Context, organizationID, landingPageID string) (*model.LandingPage, error) {
	args := m.Called(ctx, organizationID, landingPageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LandingPage), args.Error(1)
}

// IncrementSubmissionCount mocks the IncrementSubmissionCount method
func (m *LandingPageRepoMock) IncrementSubmissionCount(ctx context.Context, landingPageID string) error {
	args := m.Called(ctx, landingPageID)
	return args.Error(0)
}

// --- LeadRepo Mock ---

// LeadRepoMock mocks the LeadRepo interface. Transition runs the decide
// callback against the lead given as the first return value so that tests
// exercise the real decision logic.
type LeadRepoMock struct {
	mock.Mock

	// Applied collects the activities produced by decide in Transition.
	Applied []*model.LeadActivity
}

// CreateWithActivity mocks the CreateWithActivity method
func (m *LeadRepoMock) CreateWithActivity(ctx context.Context, lead *model.Lead, activity *model.LeadActivity) error {
	args := m.Called(ctx, lead, activity)
	return args.Error(0)
}

// Transition mocks the Transition method
func (m *LeadRepoMock) Transition(ctx context.Context, leadID string, decide storage.TransitionFunc) (*model.Lead, bool, error) {
	args := m.Called(ctx, leadID, decide)
	if err := args.Error(2); err != nil {
		return nil, false, err
	}
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}

	// The fixture is mutated in place so consecutive transitions see the
	// previous outcome, as they would against a real row.
	current := args.Get(0).(*model.Lead)
	snapshot := *current
	activity, err := decide(current)
	if err != nil {
		*current = snapshot
		return nil, false, err
	}
	if activity != nil {
		m.Applied = append(m.Applied, activity)
	}
	return current, activity != nil, nil
}

// FindByID mocks the FindByID method
func (m *LeadRepoMock) FindByID(ctx context.Context, leadID string) (*model.Lead, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

// List mocks the List method
func (m *LeadRepoMock) List(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Lead), args.Error(1)
}

// AppendActivity mocks the AppendActivity method
func (m *LeadRepoMock) AppendActivity(ctx context.Context, activity *model.LeadActivity) error {
	args := m.Called(ctx, activity)
	return args.Error(0)
}

// ListActivities mocks the ListActivities method
func (m *LeadRepoMock) ListActivities(ctx context.Context, leadID string, limit, offset int) ([]model.LeadActivity, error) {
	args := m.Called(ctx, leadID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LeadActivity), args.Error(1)
}

// --- DeadLetterRepo Mock ---

// DeadLetterRepoMock mocks the DeadLetterRepo interface
type DeadLetterRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *DeadLetterRepoMock) Save(ctx context.Context, letter *model.DeadLetter) error {
	args := m.Called(ctx, letter)
	return args.Error(0)
}

// --- Pinger Mock ---

// PingerMock mocks the Pinger interface
type PingerMock struct {
	mock.Mock
}

// Ping mocks the Ping method
func (m *PingerMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

var (
	_ storage.OrganizationRepo = (*OrganizationRepoMock)(nil)
	_ storage.LandingPageRepo  = (*LandingPageRepoMock)(nil)
	_ storage.LeadRepo         = (*LeadRepoMock)(nil)
	_ storage.DeadLetterRepo   = (*DeadLetterRepoMock)(nil)
	_ storage.Pinger           = (*PingerMock)(nil)
)
