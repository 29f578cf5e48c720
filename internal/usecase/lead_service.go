package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/attribution"
	"gitlab.com/smilefunnel/api/lead-engine/internal/lifecycle"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/internal/scoring"
	"gitlab.com/smilefunnel/api/lead-engine/internal/storage"
	"gitlab.com/smilefunnel/api/lead-engine/internal/tenant"
	"gitlab.com/smilefunnel/api/lead-engine/internal/validator"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/utils"
)

// Intake outcomes, used as metric labels.
const (
	outcomeCreated       = "created"
	outcomeRejected      = "rejected"
	outcomeStorageFailed = "storage_failure"
)

// ILeadService is the lead use case surface consumed by the transports.
type ILeadService interface {
	Intake(ctx context.Context, submission model.Submission) (*model.Lead, error)
	TransitionStatus(ctx context.Context, req model.StatusChangeRequest) (*model.Lead, error)
	AddNote(ctx context.Context, req model.NoteRequest) (*model.LeadActivity, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error)
	ListActivities(ctx context.Context, leadID string, limit, offset int) ([]model.LeadActivity, error)
}

// LeadService orchestrates intake and the lead lifecycle.
type LeadService struct {
	organizations storage.OrganizationRepo
	landingPages  storage.LandingPageRepo
	leads         storage.LeadRepo
	sideEffects   ISideEffectWorker
	notifier      Notifier // nil disables lead notifications
	now           func() time.Time
}

// Ensure LeadService implements ILeadService
var _ ILeadService = (*LeadService)(nil)

// NewLeadService creates a new lead service
func NewLeadService(
	organizations storage.OrganizationRepo,
	landingPages storage.LandingPageRepo,
	leads storage.LeadRepo,
	sideEffects ISideEffectWorker,
	notifier Notifier,
) *LeadService {
	return &LeadService{
		organizations: organizations,
		landingPages:  landingPages,
		leads:         leads,
		sideEffects:   sideEffects,
		notifier:      notifier,
		now:           utils.Now,
	}
}

// Intake validates a landing-page submission, persists the scored lead with
// its "created" activity and schedules the best-effort follow-ups. Side
// effect failures never reach the caller.
func (s *LeadService) Intake(ctx context.Context, submission model.Submission) (*model.Lead, error) {
	sub := submission.Normalize()
	log := logger.FromContext(ctx).With(
		zap.String("organization_id", sub.OrganizationID),
		zap.String("landing_page_id", sub.LandingPageID),
	)

	org, page, err := s.checkSubmission(ctx, sub)
	if err != nil {
		outcome := outcomeRejected
		if apperrors.IsStorageFailure(err) {
			outcome = outcomeStorageFailed
		}
		observer.IncIntake(sub.OrganizationID, outcome)
		log.Info("Submission rejected", zap.Error(err))
		return nil, err
	}

	source := attribution.ClassifySource(sub.UTMSource, sub.UTMMedium)
	score := scoring.ScoreSubmission(sub)
	now := s.now().UTC()

	lead := &model.Lead{
		ID:              uuid.NewString(),
		OrganizationID:  org.ID,
		LandingPageID:   page.ID,
		CampaignID:      optional(sub.CampaignID),
		TerritoryID:     optional(sub.TerritoryID),
		FirstName:       sub.FirstName,
		LastName:        sub.LastName,
		Email:           sub.Email,
		Phone:           sub.Phone,
		Source:          source,
		SourceDetail:    attribution.SourceDetail(sub, page.Name),
		Status:          model.LeadStatusNew,
		Temperature:     score.Temperature,
		Score:           score.Score,
		InsuranceStatus: sub.InsuranceStatus,
		Notes:           sub.Notes,
		UTMSource:       sub.UTMSource,
		UTMMedium:       sub.UTMMedium,
		UTMCampaign:     sub.UTMCampaign,
		UTMContent:      sub.UTMContent,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	activity := &model.LeadActivity{
		Type:      model.ActivityCreated,
		ToStatus:  statusPtr(model.LeadStatusNew),
		Content:   "Lead submitted from " + page.Name,
		ActorType: model.ActorSystem,
		Metadata: jsonMetadata(map[string]interface{}{
			"score":         score.Score,
			"temperature":   score.Temperature,
			"breakdown":     score.Breakdown,
			"source":        source,
			"source_detail": lead.SourceDetail,
			"referrer":      sub.Referrer,
		}),
		CreatedAt: now,
	}

	if err := s.leads.CreateWithActivity(ctx, lead, activity); err != nil {
		observer.IncIntake(org.ID, outcomeStorageFailed)
		log.Error("Failed to persist lead", zap.String("lead_id", lead.ID), zap.Error(err))
		return nil, apperrors.NewStorageFailure("create_lead", err)
	}

	observer.IncIntake(org.ID, outcomeCreated)
	observer.ObserveLeadScore(string(lead.Temperature), string(lead.Source), lead.Score)
	log.Info("Lead created",
		zap.String("lead_id", lead.ID),
		zap.String("source", string(lead.Source)),
		zap.Int("score", lead.Score),
		zap.String("temperature", string(lead.Temperature)),
	)

	s.scheduleSideEffects(ctx, lead, org, page)
	return lead, nil
}

// checkSubmission runs the precondition chain in its fixed order and stops at
// the first failure.
func (s *LeadService) checkSubmission(ctx context.Context, sub model.Submission) (*model.Organization, *model.LandingPage, error) {
	if sub.OrganizationID == "" {
		return nil, nil, apperrors.NewMissingField("organization_id")
	}
	if sub.LandingPageID == "" {
		return nil, nil, apperrors.NewMissingField("landing_page_id")
	}
	if sub.Email == "" && sub.Phone == "" {
		return nil, nil, apperrors.ErrInsufficientContact
	}
	if _, err := tenant.FromContext(ctx); err == nil {
		if err := tenant.EnsureMatches(ctx, sub.OrganizationID); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
		}
	}

	org, err := s.organizations.FindByID(ctx, sub.OrganizationID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, nil, apperrors.ErrOrganizationNotFound
	case err != nil:
		return nil, nil, apperrors.NewStorageFailure("find_organization", err)
	case !org.IsActive():
		return nil, nil, apperrors.ErrOrganizationNotFound
	}

	page, err := s.landingPages.FindByID(ctx, org.ID, sub.LandingPageID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, nil, apperrors.ErrLandingPageNotFound
	case err != nil:
		return nil, nil, apperrors.NewStorageFailure("find_landing_page", err)
	}
	return org, page, nil
}

// scheduleSideEffects hands the post-commit follow-ups to the worker pool.
// The tasks run on a context detached from the request so a finished HTTP
// call does not cancel them.
func (s *LeadService) scheduleSideEffects(ctx context.Context, lead *model.Lead, org *model.Organization, page *model.LandingPage) {
	taskCtx := tenant.WithOrganizationID(context.WithoutCancel(ctx), lead.OrganizationID)
	log := logger.FromContext(ctx)

	tasks := []SideEffectTask{{
		Ctx:            taskCtx,
		Kind:           SideEffectIncrementSubmissions,
		OrganizationID: lead.OrganizationID,
		LeadID:         lead.ID,
		Run: func(ctx context.Context) error {
			return s.landingPages.IncrementSubmissionCount(ctx, page.ID)
		},
	}}
	if s.notifier != nil {
		notification := newLeadNotification(lead, org, page)
		tasks = append(tasks, SideEffectTask{
			Ctx:            taskCtx,
			Kind:           SideEffectNotifyLeadCreated,
			OrganizationID: lead.OrganizationID,
			LeadID:         lead.ID,
			Run: func(ctx context.Context) error {
				return s.notifier.NotifyLeadCreated(ctx, notification)
			},
		})
	}

	for _, task := range tasks {
		if err := s.sideEffects.SubmitTask(task); err != nil {
			log.Warn("Side effect dropped",
				zap.String("side_effect", task.Kind),
				zap.String("lead_id", lead.ID),
				zap.Error(err),
			)
		}
	}
}

// TransitionStatus moves a lead of the organization in ctx along the status
// graph. Requesting the current status returns the lead unchanged.
func (s *LeadService) TransitionStatus(ctx context.Context, req model.StatusChangeRequest) (*model.Lead, error) {
	req.Status = model.LeadStatus(normalizeStatus(string(req.Status)))
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	if req.ActorType == "" {
		req.ActorType = model.ActorUser
	}
	log := logger.FromContext(ctx).With(zap.String("lead_id", req.LeadID), zap.String("requested", string(req.Status)))

	var from model.LeadStatus
	decide := func(lead *model.Lead) (*model.LeadActivity, error) {
		from = lead.Status
		changed, err := lifecycle.Apply(lead, req.Status, s.now())
		if err != nil || !changed {
			return nil, err
		}
		metadata := map[string]interface{}{"version": lead.Version}
		if req.Reason != "" {
			metadata["reason"] = req.Reason
		}
		return &model.LeadActivity{
			Type:       model.ActivityStatusChange,
			FromStatus: statusPtr(from),
			ToStatus:   statusPtr(lead.Status),
			Content:    fmt.Sprintf("Status changed from %s to %s", from, lead.Status),
			ActorID:    req.ActorID,
			ActorType:  req.ActorType,
			Metadata:   jsonMetadata(metadata),
			CreatedAt:  lead.UpdatedAt,
		}, nil
	}

	lead, changed, err := s.leads.Transition(ctx, req.LeadID, decide)
	switch {
	case apperrors.IsInvalidTransition(err):
		observer.IncStatusTransition(string(from), string(req.Status), "rejected")
		log.Info("Status transition rejected", zap.Error(err))
		return nil, err
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, apperrors.ErrLeadNotFound
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrConflict):
		observer.IncStatusTransition(string(from), string(req.Status), "conflict")
		return nil, err
	case err != nil:
		observer.IncStatusTransition(string(from), string(req.Status), "error")
		log.Error("Status transition failed", zap.Error(err))
		return nil, apperrors.NewStorageFailure("transition_lead", err)
	}

	if !changed {
		observer.IncStatusTransition(string(from), string(req.Status), "noop")
		log.Debug("Lead already in requested status")
		return lead, nil
	}
	observer.IncStatusTransition(string(from), string(lead.Status), "applied")
	log.Info("Lead status changed",
		zap.String("from", string(from)),
		zap.String("to", string(lead.Status)),
		zap.Int64("version", lead.Version),
	)
	return lead, nil
}

// AddNote appends a free-text note to a lead of the organization in ctx.
func (s *LeadService) AddNote(ctx context.Context, req model.NoteRequest) (*model.LeadActivity, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}
	if req.ActorType == "" {
		req.ActorType = model.ActorUser
	}

	activity := &model.LeadActivity{
		LeadID:         req.LeadID,
		OrganizationID: organizationID,
		Type:           model.ActivityNote,
		Content:        req.Content,
		ActorID:        req.ActorID,
		ActorType:      req.ActorType,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.leads.AppendActivity(ctx, activity); err != nil {
		return nil, s.mapLeadError("append_activity", err)
	}
	return activity, nil
}

// GetLead loads a lead of the organization in ctx.
func (s *LeadService) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	if leadID == "" {
		return nil, apperrors.NewMissingField("lead_id")
	}
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, s.mapLeadError("find_lead", err)
	}
	return lead, nil
}

// ListLeads lists the organization's leads, newest first.
func (s *LeadService) ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error) {
	if filter.Status != "" {
		status, err := model.ParseLeadStatus(string(filter.Status))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrValidation, err)
		}
		filter.Status = status
	}
	switch filter.Temperature {
	case "", model.TemperatureHot, model.TemperatureWarm, model.TemperatureCold:
	default:
		return nil, fmt.Errorf("%w: unknown temperature %q", apperrors.ErrValidation, filter.Temperature)
	}

	leads, err := s.leads.List(ctx, filter)
	if err != nil {
		return nil, s.mapLeadError("list_leads", err)
	}
	return leads, nil
}

// ListActivities returns a lead's history, newest first.
func (s *LeadService) ListActivities(ctx context.Context, leadID string, limit, offset int) ([]model.LeadActivity, error) {
	if leadID == "" {
		return nil, apperrors.NewMissingField("lead_id")
	}
	activities, err := s.leads.ListActivities(ctx, leadID, limit, offset)
	if err != nil {
		return nil, s.mapLeadError("list_activities", err)
	}
	return activities, nil
}

func (s *LeadService) mapLeadError(op string, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return apperrors.ErrLeadNotFound
	case errors.Is(err, apperrors.ErrUnauthorized):
		return err
	default:
		return apperrors.NewStorageFailure(op, err)
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func statusPtr(s model.LeadStatus) *model.LeadStatus {
	return &s
}

func normalizeStatus(s string) string {
	if st, err := model.ParseLeadStatus(s); err == nil {
		return string(st)
	}
	return s
}

func jsonMetadata(m map[string]interface{}) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
