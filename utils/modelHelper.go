package utils

import (
	"context"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
)

// fetch one model by key column
// (explicit business_id in WHERE on top of the tenant guard)
func FetchModel[T any](ctx context.Context, businessId string, keyColumn string, id any, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("business_id = ?", businessId)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.Where(keyColumn+" = ?", id).First(&result).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}
