package workflow

import (
	"context"
	"strings"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"gorm.io/gorm"
)

const fieldSignoffHandlerName = "fieldSignoff"

// FieldSignoffMessage is the payload pushed by the field app when a crew
// submits facts from the job site (a reading, photos, a registration).
type FieldSignoffMessage struct {
	BusinessId string               `json:"business_id"`
	JobId      string               `json:"job_id"`
	Facts      models.SignoffUpdate `json:"facts"`
}

// ProcessFieldSignoff applies one pushed message exactly once. Pub/Sub
// delivers at-least-once; the durable idempotency key makes redelivery a
// safe skip. Returning ErrIdempotencyInProgress asks Pub/Sub to retry later.
func ProcessFieldSignoff(ctx context.Context, messageId string, msg *FieldSignoffMessage) error {
	if msg == nil || strings.TrimSpace(msg.BusinessId) == "" || strings.TrimSpace(msg.JobId) == "" {
		return utils.ValidationErrorf("business_id and job_id are required")
	}
	if messageId == "" {
		return utils.ValidationErrorf("message id is required")
	}

	ctx = utils.SetBusinessIdInContext(ctx, msg.BusinessId)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "field-app")

	db := config.GetDB()

	var skip bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		skip, err = BeginIdempotency(tx, msg.BusinessId, fieldSignoffHandlerName, messageId)
		return err
	})
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	_, err = UpdateSignoff(ctx, msg.JobId, &msg.Facts)
	if err != nil {
		_ = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return MarkIdempotencyFailed(tx, msg.BusinessId, fieldSignoffHandlerName, messageId, err)
		})
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return MarkIdempotencySucceeded(tx, msg.BusinessId, fieldSignoffHandlerName, messageId)
	})
}
