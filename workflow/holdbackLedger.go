package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"gorm.io/gorm"
)

// fetchHoldbackEntry loads the ledger row for a job on the given connection.
func fetchHoldbackEntry(ctx context.Context, tx *gorm.DB, businessId string, jobId string) (*models.HoldbackEntry, error) {
	var entry models.HoldbackEntry
	err := tx.WithContext(ctx).
		Where("business_id = ? AND job_id = ?", businessId, jobId).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// releaseHoldbackTx performs one held -> released/forceReleased transition
// with an audit row and an outbox event, all inside tx. The WHERE on status
// guards against a lost-update even though callers hold the per-job lock.
func releaseHoldbackTx(ctx context.Context, tx *gorm.DB, entry *models.HoldbackEntry, status models.HoldbackStatus, eventType models.QAEventType, description string) error {
	before := *entry

	userId, _ := utils.GetUserIdFromContext(ctx)
	now := time.Now().UTC()

	var err error
	if status == models.HoldbackStatusForceReleased {
		err = entry.MarkForceReleased(userId, now)
	} else {
		err = entry.MarkReleased(userId, now)
	}
	if err != nil {
		return err
	}

	result := tx.Model(&models.HoldbackEntry{}).
		Where("id = ? AND status = ?", entry.ID, models.HoldbackStatusHeld).
		Updates(map[string]interface{}{
			"status":        entry.Status,
			"release_basis": entry.ReleaseBasis,
			"released_at":   entry.ReleasedAt,
			"released_by":   entry.ReleasedBy,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.InvalidStateErrorf("holdback for job %s is no longer held", entry.JobId)
	}

	if err := models.SaveHistory(tx, "UPDATE", entry.JobId, "holdback_entries", &before, entry, description); err != nil {
		return err
	}
	return models.PublishQAEvent(ctx, tx, entry.BusinessId, entry.JobId, eventType, entry)
}

// ReleaseOnGatePass transitions held -> released with releaseBasis=gatePassed.
// Callers re-run the evaluator on the current record state first; the ledger
// never trusts a cached verdict.
func ReleaseOnGatePass(ctx context.Context, tx *gorm.DB, entry *models.HoldbackEntry) error {
	return releaseHoldbackTx(ctx, tx, entry,
		models.HoldbackStatusReleased, models.QAEventHoldbackReleased,
		"Holdback "+entry.Amount.StringFixed(2)+" released (gate passed)")
}

// ForceRelease transitions held -> forceReleased. The override record is
// committed by the caller before this runs.
func ForceRelease(ctx context.Context, tx *gorm.DB, entry *models.HoldbackEntry) error {
	return releaseHoldbackTx(ctx, tx, entry,
		models.HoldbackStatusForceReleased, models.QAEventHoldbackForceReleased,
		"Holdback "+entry.Amount.StringFixed(2)+" force released (override)")
}
