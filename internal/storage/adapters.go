package storage

import (
	"context"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
)

// OrganizationRepoAdapter adapts the PostgresRepo to the OrganizationRepo interface
type OrganizationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewOrganizationRepoAdapter creates a new organization repository adapter
func NewOrganizationRepoAdapter(postgres *PostgresRepo) OrganizationRepo {
	return &OrganizationRepoAdapter{postgres: postgres}
}

// FindByID finds an organization by ID
func (a *OrganizationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Organization, error) {
	return a.postgres.FindOrganizationByID(ctx, id)
}

// LandingPageRepoAdapter adapts the PostgresRepo to the LandingPageRepo interface
type LandingPageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewLandingPageRepoAdapter creates a new landing page repository adapter
func NewLandingPageRepoAdapter(postgres *PostgresRepo) LandingPageRepo {
	return &LandingPageRepoAdapter{postgres: postgres}
}

// FindByID finds a landing page owned by organizationID
func (a *LandingPageRepoAdapter) FindByID(ctx context.Context, organizationID, landingPageID string) (*model.LandingPage, error) {
	return a.postgres.FindLandingPage(ctx, organizationID, landingPageID)
}

// IncrementSubmissionCount bumps the page's submission counter
func (a *LandingPageRepoAdapter) IncrementSubmissionCount(ctx context.Context, landingPageID string) error {
	return a.postgres.IncrementSubmissionCount(ctx, landingPageID)
}

// LeadRepoAdapter adapts the PostgresRepo to the LeadRepo interface
type LeadRepoAdapter struct {
	postgres *PostgresRepo
}

// NewLeadRepoAdapter creates a new lead repository adapter
func NewLeadRepoAdapter(postgres *PostgresRepo) LeadRepo {
	return &LeadRepoAdapter{postgres: postgres}
}

// CreateWithActivity inserts a lead with its first activity atomically
func (a *LeadRepoAdapter) CreateWithActivity(ctx context.Context, lead *model.Lead, activity *model.LeadActivity) error {
	return a.postgres.CreateLeadWithActivity(ctx, lead, activity)
}

// Transition applies a status change under a row lock
func (a *LeadRepoAdapter) Transition(ctx context.Context, leadID string, decide TransitionFunc) (*model.Lead, bool, error) {
	return a.postgres.TransitionLeadStatus(ctx, leadID, decide)
}

// FindByID finds a lead by ID
func (a *LeadRepoAdapter) FindByID(ctx context.Context, leadID string) (*model.Lead, error) {
	return a.postgres.FindLeadByID(ctx, leadID)
}

// List lists leads matching filter
func (a *LeadRepoAdapter) List(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error) {
	return a.postgres.ListLeads(ctx, filter)
}

// AppendActivity appends a non-status activity
func (a *LeadRepoAdapter) AppendActivity(ctx context.Context, activity *model.LeadActivity) error {
	return a.postgres.AppendActivity(ctx, activity)
}

// ListActivities lists a lead's activities
func (a *LeadRepoAdapter) ListActivities(ctx context.Context, leadID string, limit, offset int) ([]model.LeadActivity, error) {
	return a.postgres.ListActivities(ctx, leadID, limit, offset)
}

// DeadLetterRepoAdapter adapts the PostgresRepo to the DeadLetterRepo interface
type DeadLetterRepoAdapter struct {
	postgres *PostgresRepo
}

// NewDeadLetterRepoAdapter creates a new dead letter repository adapter
func NewDeadLetterRepoAdapter(postgres *PostgresRepo) DeadLetterRepo {
	return &DeadLetterRepoAdapter{postgres: postgres}
}

// Save archives a parked message
func (a *DeadLetterRepoAdapter) Save(ctx context.Context, letter *model.DeadLetter) error {
	return a.postgres.SaveDeadLetter(ctx, letter)
}
