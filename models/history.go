package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"gorm.io/gorm"
)

// History is the append-only audit trail. Rows are never updated or deleted;
// gate overrides and holdback transitions each add one.
type History struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;not null" json:"business_id"`
	ActionType    string    `gorm:"size:10;not null" json:"action_type"`
	Before        string    `gorm:"type:text" json:"before"`
	After         string    `gorm:"type:text" json:"after"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	ReferenceId   string    `gorm:"size:64;index" json:"reference_id"`
	ReferenceType string    `gorm:"size:255" json:"reference_type"`
	UserId        int       `gorm:"index;not null" json:"user_id"`
	UserName      string    `gorm:"size:100" json:"user_name"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SaveHistory writes one audit row inside the caller's transaction, pulling
// the actor from the transaction's context.
func SaveHistory(tx *gorm.DB,
	actionType string,
	referenceId interface{},
	referenceType string,
	before interface{},
	after interface{},
	description string) error {

	b, _ := utils.MarshalToJSON(before)
	a, _ := utils.MarshalToJSON(after)

	ctx := tx.Statement.Context
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return utils.ValidationErrorf("business id is required")
	}
	userId, _ := utils.GetUserIdFromContext(ctx)
	userName, _ := utils.GetUserNameFromContext(ctx)

	history := History{
		BusinessId:    businessId,
		ActionType:    actionType,
		Before:        b,
		After:         a,
		Description:   description,
		ReferenceId:   toReferenceId(referenceId),
		ReferenceType: referenceType,
		UserId:        userId,
		UserName:      userName,
	}
	return tx.Create(&history).Error
}

func toReferenceId(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// GetHistories lists audit rows for the tenant, newest first, optionally
// filtered by reference.
func GetHistories(ctx context.Context, referenceId *string, referenceType *string) ([]*History, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.ValidationErrorf("business id is required")
	}

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	if referenceId != nil && *referenceId != "" {
		dbCtx = dbCtx.Where("reference_id = ?", *referenceId)
	}
	if referenceType != nil && *referenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", *referenceType)
	}

	var results []*History
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
