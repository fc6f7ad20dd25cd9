package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"gorm.io/gorm"
)

// OverrideRecord is the append-only record of a manager bypassing the QA
// gate or force-releasing a holdback. Rows are never updated or deleted.
type OverrideRecord struct {
	ID         int          `gorm:"primary_key" json:"id"`
	BusinessId string       `gorm:"size:64;not null;index" json:"business_id"`
	JobId      string       `gorm:"size:64;not null;index" json:"job_id"`
	Type       OverrideType `gorm:"type:enum('qaOverride','holdbackForceRelease');not null" json:"type"`
	Reason     string       `gorm:"type:text;not null" json:"reason"`
	UserId     int          `gorm:"not null" json:"user_id"`
	UserName   string       `gorm:"size:100" json:"user_name"`
	CreatedAt  time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

// CreateOverrideRecord writes the override inside the caller's transaction.
// The reason is mandatory; a blank one rejects the whole operation.
func CreateOverrideRecord(tx *gorm.DB, businessId string, jobId string, overrideType OverrideType, reason string, userId int, userName string) (*OverrideRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, utils.ValidationErrorf("override reason is required")
	}
	if !overrideType.IsValid() {
		return nil, utils.ValidationErrorf("invalid override type")
	}

	record := OverrideRecord{
		BusinessId: businessId,
		JobId:      jobId,
		Type:       overrideType,
		Reason:     strings.TrimSpace(reason),
		UserId:     userId,
		UserName:   userName,
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// ListOverrideRecords returns a job's overrides, oldest first.
func ListOverrideRecords(ctx context.Context, businessId string, jobId string) ([]*OverrideRecord, error) {
	db := config.GetDB()
	var records []*OverrideRecord
	err := db.WithContext(ctx).
		Where("business_id = ? AND job_id = ?", businessId, jobId).
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
