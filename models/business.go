package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Business is the tenant root. Every QA row carries its BusinessId and the
// tenant guard plugin scopes queries to it.
type Business struct {
	ID        string    `gorm:"primary_key;size:64" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	Address   string    `gorm:"size:255" json:"address"`
	Timezone  string    `gorm:"size:50" json:"timezone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

/*
caches:
	Business:$businessId
*/

func (business Business) RemoveInstanceRedis() error {
	return utils.RemoveRedisItem[Business](business.ID)
}

// CreateBusiness registers a tenant and seeds its default QA policy in the
// same transaction so a fresh tenant is immediately usable.
func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	db := config.GetDB()

	business := Business{
		ID:       uuid.NewString(),
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Address:  input.Address,
		Timezone: input.Timezone,
		IsActive: utils.NewTrue(),
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&business).Error; err != nil {
			return err
		}
		policy := DefaultQAPolicy(business.ID)
		if err := tx.Create(&policy).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusinessById(ctx context.Context, businessId string) (*Business, error) {
	if cached, err := utils.RetrieveRedis[Business](businessId); err == nil && cached != nil {
		return cached, nil
	}

	db := config.GetDB()
	var business Business
	if err := db.WithContext(ctx).Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	_ = utils.StoreRedis[Business](&business, businessId)
	return &business, nil
}
