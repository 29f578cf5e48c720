package storage

import (
	"context"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

// OrganizationRepo looks up practices. Not-found is reported as apperrors.ErrNotFound.
type OrganizationRepo interface {
	FindByID(ctx context.Context, id string) (*model.Organization, error)
}

// LandingPageRepo looks up funnel pages and bumps their submission counters.
type LandingPageRepo interface {
	FindByID(ctx context.Context, organizationID, landingPageID string) (*model.LandingPage, error)
	IncrementSubmissionCount(ctx context.Context, landingPageID string) error
}

// LeadRepo defines lead and lead activity storage operations. Every method
// except Create is scoped to the organization in the context.
type LeadRepo interface {
	CreateWithActivity(ctx context.Context, lead *model.Lead, activity *model.LeadActivity) error
	Transition(ctx context.Context, leadID string, decide TransitionFunc) (*model.Lead, bool, error)
	FindByID(ctx context.Context, leadID string) (*model.Lead, error)
	List(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error)
	AppendActivity(ctx context.Context, activity *model.LeadActivity) error
	ListActivities(ctx context.Context, leadID string, limit, offset int) ([]model.LeadActivity, error)
}

// DeadLetterRepo archives messages the DLQ worker gave up on.
type DeadLetterRepo interface {
	Save(ctx context.Context, letter *model.DeadLetter) error
}

// Pinger reports database reachability for readiness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
