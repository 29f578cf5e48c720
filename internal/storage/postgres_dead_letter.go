package storage

import (
	"context"
	"time"

	"gitlab.com/smilefunnel/api/lead-engine/internal/model"
	"gitlab.com/smilefunnel/api/lead-engine/internal/observer"
)

// SaveDeadLetter archives a parked message. It is not tenant scoped: the
// organization comes from the DLQ payload and may be empty.
func (r *PostgresRepo) SaveDeadLetter(ctx context.Context, letter *model.DeadLetter) (err error) {
	start := time.Now()
	defer func() {
		observer.ObserveDbOperationDuration("create", "dead_letter", letter.OrganizationID, time.Since(start), err)
	}()

	if err = r.db.WithContext(ctx).Create(letter).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}
