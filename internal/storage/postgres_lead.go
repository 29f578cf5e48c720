package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/internal/tenant"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// TransitionFunc decides a status change against the locked current row. It
// mutates lead in place and returns the activity to append, or nil for a no-op.
type TransitionFunc func(lead *model.Lead) (*model.LeadActivity, error)

// CreateLeadWithActivity inserts the lead and its first activity in one
// transaction. It is deliberately not retried.
func (r *PostgresRepo) CreateLeadWithActivity(ctx context.Context, lead *model.Lead, activity *model.LeadActivity) (err error) {
	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("create", "lead", lead.OrganizationID, time.Since(start), err)
	}()

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return checkConstraintViolation(tx.Error)
	}
	defer rollbackOnError(ctx, tx, &err, "create_lead")

	if err = tx.Create(lead).Error; err != nil {
		err = checkConstraintViolation(err)
		return err
	}

	activity.LeadID = lead.ID
	activity.OrganizationID = lead.OrganizationID
	if err = tx.Create(activity).Error; err != nil {
		err = checkConstraintViolation(err)
		return err
	}

	if err = tx.Commit().Error; err != nil {
		logger.FromContext(ctx).Error("Failed to commit lead creation", zap.String("lead_id", lead.ID), zap.Error(err))
		err = checkConstraintViolation(err)
		return err
	}
	return nil
}

// TransitionLeadStatus locks the lead row (SELECT ... FOR UPDATE), lets decide
// evaluate the change against that consistent state, then persists the new
// status guarded by the previous version and appends the activity. The bool
// result is false when decide reported a no-op.
func (r *PostgresRepo) TransitionLeadStatus(ctx context.Context, leadID string, decide TransitionFunc) (lead *model.Lead, changed bool, err error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("transition", "lead", organizationID, time.Since(start), err)
	}()

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, false, checkConstraintViolation(tx.Error)
	}
	defer rollbackOnError(ctx, tx, &err, "transition_lead")

	var current model.Lead
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND organization_id = ?", leadID, organizationID).
		First(&current).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, leadID)
			return nil, false, err
		}
		err = checkConstraintViolation(err)
		return nil, false, err
	}

	previousVersion := current.Version
	activity, err := decide(&current)
	if err != nil {
		return nil, false, err
	}

	if activity == nil {
		// Nothing to write; commit only releases the row lock.
		if err = tx.Commit().Error; err != nil {
			err = checkConstraintViolation(err)
			return nil, false, err
		}
		return &current, false, nil
	}

	res := tx.Model(&model.Lead{}).
		Where("id = ? AND version = ?", current.ID, previousVersion).
		Updates(map[string]interface{}{
			"status":       current.Status,
			"converted_at": current.ConvertedAt,
			"version":      current.Version,
			"updated_at":   current.UpdatedAt,
		})
	if res.Error != nil {
		err = checkConstraintViolation(res.Error)
		return nil, false, err
	}
	if res.RowsAffected == 0 {
		err = fmt.Errorf("%w: lead %s changed concurrently (version %d)", apperrors.ErrConflict, current.ID, previousVersion)
		return nil, false, err
	}

	activity.LeadID = current.ID
	activity.OrganizationID = current.OrganizationID
	if err = tx.Create(activity).Error; err != nil {
		err = checkConstraintViolation(err)
		return nil, false, err
	}

	if err = tx.Commit().Error; err != nil {
		err = checkConstraintViolation(err)
		return nil, false, err
	}
	return &current, true, nil
}

// FindLeadByID loads a lead of the organization in ctx.
func (r *PostgresRepo) FindLeadByID(ctx context.Context, leadID string) (lead *model.Lead, err error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("find", "lead", organizationID, time.Since(start), err)
	}()

	var found model.Lead
	policy := newRetryPolicy(ctx, r.readRetryMaxElapsed)
	err = retryableOperation(ctx, policy, "find_lead", func() error {
		return r.db.WithContext(ctx).
			Where("id = ? AND organization_id = ?", leadID, organizationID).
			First(&found).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, leadID)
		}
		return nil, checkConstraintViolation(err)
	}
	return &found, nil
}

// ListLeads returns the organization's leads, newest first.
func (r *PostgresRepo) ListLeads(ctx context.Context, filter model.LeadFilter) (leads []model.Lead, err error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("list", "lead", organizationID, time.Since(start), err)
	}()

	query := r.db.WithContext(ctx).Where("organization_id = ?", organizationID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Temperature != "" {
		query = query.Where("temperature = ?", filter.Temperature)
	}
	query = query.Session(&gorm.Session{})

	policy := newRetryPolicy(ctx, r.readRetryMaxElapsed)
	err = retryableOperation(ctx, policy, "list_leads", func() error {
		leads = nil
		return query.Order("created_at DESC").
			Limit(clampLimit(filter.Limit)).
			Offset(max(filter.Offset, 0)).
			Find(&leads).Error
	})
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return leads, nil
}

// AppendActivity adds a note (or any non-status activity) to an existing lead
// of the organization in ctx.
func (r *PostgresRepo) AppendActivity(ctx context.Context, activity *model.LeadActivity) (err error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("create", "lead_activity", organizationID, time.Since(start), err)
	}()

	var count int64
	err = r.db.WithContext(ctx).Model(&model.Lead{}).
		Where("id = ? AND organization_id = ?", activity.LeadID, organizationID).
		Count(&count).Error
	if err != nil {
		return checkConstraintViolation(err)
	}
	if count == 0 {
		return fmt.Errorf("%w: lead %s", apperrors.ErrNotFound, activity.LeadID)
	}

	activity.OrganizationID = organizationID
	if err = r.db.WithContext(ctx).Create(activity).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// ListActivities returns a lead's history, newest first.
func (r *PostgresRepo) ListActivities(ctx context.Context, leadID string, limit, offset int) (activities []model.LeadActivity, err error) {
	organizationID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("list", "lead_activity", organizationID, time.Since(start), err)
	}()

	policy := newRetryPolicy(ctx, r.readRetryMaxElapsed)
	err = retryableOperation(ctx, policy, "list_activities", func() error {
		activities = nil
		return r.db.WithContext(ctx).
			Where("lead_id = ? AND organization_id = ?", leadID, organizationID).
			Order("created_at DESC, id DESC").
			Limit(clampLimit(limit)).
			Offset(max(offset, 0)).
			Find(&activities).Error
	})
	if err != nil {
		return nil, checkConstraintViolation(err)
	}
	return activities, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
