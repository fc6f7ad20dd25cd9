package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// QAPolicy holds the per-tenant gate thresholds and the holdback percentage.
// Exactly one row exists per tenant. Changing the policy never touches
// holdback amounts already snapshotted on completed jobs.
type QAPolicy struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	BusinessId         string          `gorm:"size:64;not null;uniqueIndex" json:"business_id"`
	HoldbackPercent    decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"holdback_percent"`
	BlockOnMicrons     *bool           `gorm:"not null;default:true" json:"block_on_microns_exceeded"`
	MicronsLimit       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"microns_limit"`
	RequiredPhotos     PhotoTypeList   `gorm:"type:json" json:"required_photos"`
	RequireInspection  *bool           `gorm:"not null;default:true" json:"require_inspection"`
	RequireWarrantyReg *bool           `gorm:"not null;default:true" json:"require_warranty_registration"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type QAPolicyUpdate struct {
	HoldbackPercent    *decimal.Decimal `json:"holdback_percent"`
	BlockOnMicrons     *bool            `json:"block_on_microns_exceeded"`
	MicronsLimit       *decimal.Decimal `json:"microns_limit"`
	RequiredPhotos     *PhotoTypeList   `json:"required_photos"`
	RequireInspection  *bool            `json:"require_inspection"`
	RequireWarrantyReg *bool            `json:"require_warranty_registration"`
}

/*
caches:
	QAPolicy:$businessId
*/

// DefaultQAPolicy is what a fresh tenant starts with: 10 percent holdback,
// 500 micron vacuum limit, before/after/equipment photos, inspection and
// warranty registration required.
func DefaultQAPolicy(businessId string) QAPolicy {
	return QAPolicy{
		BusinessId:         businessId,
		HoldbackPercent:    decimal.NewFromInt(10),
		BlockOnMicrons:     utils.NewTrue(),
		MicronsLimit:       decimal.NewFromInt(500),
		RequiredPhotos:     PhotoTypeList{PhotoTypeBefore, PhotoTypeAfter, PhotoTypeEquipment},
		RequireInspection:  utils.NewTrue(),
		RequireWarrantyReg: utils.NewTrue(),
	}
}

func policyRedisKey(businessId string) string {
	return "QAPolicy:" + businessId
}

// GetQAPolicy returns the tenant's policy, redis first then DB. A tenant
// created before policies existed gets the default row lazily.
func GetQAPolicy(ctx context.Context, businessId string) (*QAPolicy, error) {
	var policy QAPolicy
	exists, err := config.GetRedisObject(policyRedisKey(businessId), &policy)
	if err == nil && exists {
		return &policy, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Where("business_id = ?", businessId).First(&policy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		policy = DefaultQAPolicy(businessId)
		if err := db.WithContext(ctx).Create(&policy).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	_ = config.SetRedisObject(policyRedisKey(businessId), &policy, utils.GetCacheLifespan())
	return &policy, nil
}

func (input *QAPolicyUpdate) validate() error {
	if input.HoldbackPercent != nil {
		if input.HoldbackPercent.IsNegative() || input.HoldbackPercent.GreaterThan(decimal.NewFromInt(100)) {
			return utils.ValidationErrorf("holdback percent must be between 0 and 100")
		}
	}
	if input.MicronsLimit != nil && !input.MicronsLimit.IsPositive() {
		return utils.ValidationErrorf("microns limit must be positive")
	}
	if input.RequiredPhotos != nil {
		for _, pt := range *input.RequiredPhotos {
			if !pt.IsValid() {
				return utils.ValidationErrorf("%s is not a valid photo type", pt)
			}
		}
	}
	return nil
}

// UpdateQAPolicy applies a partial policy update, writes an audit row and
// invalidates the cache. Held amounts on existing jobs are snapshots and are
// not recomputed.
func UpdateQAPolicy(ctx context.Context, input *QAPolicyUpdate) (*QAPolicy, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.ValidationErrorf("business id is required")
	}

	if err := input.validate(); err != nil {
		return nil, err
	}

	policy, err := GetQAPolicy(ctx, businessId)
	if err != nil {
		return nil, err
	}
	before := *policy

	updates := map[string]interface{}{}
	if input.HoldbackPercent != nil {
		policy.HoldbackPercent = *input.HoldbackPercent
		updates["holdback_percent"] = *input.HoldbackPercent
	}
	if input.BlockOnMicrons != nil {
		policy.BlockOnMicrons = input.BlockOnMicrons
		updates["block_on_microns"] = *input.BlockOnMicrons
	}
	if input.MicronsLimit != nil {
		policy.MicronsLimit = *input.MicronsLimit
		updates["microns_limit"] = *input.MicronsLimit
	}
	if input.RequiredPhotos != nil {
		photos := PhotoTypeList(utils.UniqueSlice(*input.RequiredPhotos))
		policy.RequiredPhotos = photos
		updates["required_photos"] = photos
	}
	if input.RequireInspection != nil {
		policy.RequireInspection = input.RequireInspection
		updates["require_inspection"] = *input.RequireInspection
	}
	if input.RequireWarrantyReg != nil {
		policy.RequireWarrantyReg = input.RequireWarrantyReg
		updates["require_warranty_reg"] = *input.RequireWarrantyReg
	}
	if len(updates) == 0 {
		return policy, nil
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&QAPolicy{}).Where("business_id = ?", businessId).Updates(updates).Error; err != nil {
			return err
		}
		return SaveHistory(tx, "UPDATE", policy.ID, "qa_policies", &before, policy, "QA policy updated")
	})
	if err != nil {
		return nil, err
	}

	_ = config.RemoveRedisKey(policyRedisKey(businessId))
	return policy, nil
}
