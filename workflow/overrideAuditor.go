package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"gorm.io/gorm"
)

// RecordOverride persists an immutable override entry with actor, reason and
// timestamp. It never mutates the signoff record or the ledger; callers run
// the corresponding ledger transition AFTER this row is committed, so a crash
// between the two leaves an auditable trail rather than a phantom release.
func RecordOverride(ctx context.Context, tx *gorm.DB, businessId string, jobId string, overrideType models.OverrideType, reason string) (*models.OverrideRecord, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	record, err := models.CreateOverrideRecord(tx, businessId, jobId, overrideType, reason, userId, userName)
	if err != nil {
		return nil, err
	}

	if err := models.SaveHistory(tx, "CREATE", jobId, "override_records", nil, record, "Override recorded: "+string(overrideType)); err != nil {
		return nil, err
	}
	return record, nil
}
