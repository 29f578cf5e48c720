package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/smilefunnel/api/lead-engine/internal/apperrors"
	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
	"gitlab.com/smilefunnel/api/lead-engine/pkg/logger"
)

// FindOrganizationByID loads a non-deleted organization. Inactive organizations
// are returned as-is; callers decide what "active" means for them.
func (r *PostgresRepo) FindOrganizationByID(ctx context.Context, id string) (org *model.Organization, err error) {
	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("find", "organization", id, time.Since(start), err)
	}()

	var found model.Organization
	policy := newRetryPolicy(ctx, r.readRetryMaxElapsed)
	err = retryableOperation(ctx, policy, "find_organization", func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&found).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: organization %s", apperrors.ErrNotFound, id)
		}
		logger.FromContext(ctx).Error("Failed to find organization", zap.String("organization_id", id), zap.Error(err))
		return nil, checkConstraintViolation(err)
	}
	return &found, nil
}

// FindLandingPage loads a landing page owned by organizationID. A page owned
// by another organization is reported as not found.
func (r *PostgresRepo) FindLandingPage(ctx context.Context, organizationID, landingPageID string) (page *model.LandingPage, err error) {
	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("find", "landing_page", organizationID, time.Since(start), err)
	}()

	var found model.LandingPage
	policy := newRetryPolicy(ctx, r.readRetryMaxElapsed)
	err = retryableOperation(ctx, policy, "find_landing_page", func() error {
		return r.db.WithContext(ctx).
			Where("id = ? AND organization_id = ?", landingPageID, organizationID).
			First(&found).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: landing page %s", apperrors.ErrNotFound, landingPageID)
		}
		logger.FromContext(ctx).Error("Failed to find landing page",
			zap.String("organization_id", organizationID),
			zap.String("landing_page_id", landingPageID),
			zap.Error(err))
		return nil, checkConstraintViolation(err)
	}
	return &found, nil
}

// IncrementSubmissionCount adds one to the page's submission counter in a
// single UPDATE. It is not retried.
func (r *PostgresRepo) IncrementSubmissionCount(ctx context.Context, landingPageID string) (err error) {
	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("increment", "landing_page", "", time.Since(start), err)
	}()

	res := r.db.WithContext(ctx).
		Model(&model.LandingPage{}).
		Where("id = ?", landingPageID).
		UpdateColumn("submission_count", gorm.Expr("submission_count + ?", 1))
	if res.Error != nil {
		return checkConstraintViolation(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: landing page %s", apperrors.ErrNotFound, landingPageID)
	}
	return nil
}
