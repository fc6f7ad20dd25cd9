// seed-admin bootstraps a development tenant: one company with the default
// QA policy, an owner login and a handful of demo jobs in different gate
// states.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"bitbucket.org/mmdatafocus/hvacops_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ownerUsername = "hvacowner"
	ownerPassword = "Hv@cOwner1"
	ownerName     = "Demo Owner"
	companyName   = "Summit Heating & Air"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	business, err := findOrCreateBusiness(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed business: %v\n", err)
		os.Exit(1)
	}
	ctx = utils.SetBusinessIdInContext(ctx, business.ID)

	if err := seedOwner(ctx, db, business.ID); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed owner: %v\n", err)
		os.Exit(1)
	}

	if err := seedDemoJobs(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed demo jobs: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded business %s (%s) with owner %s\n", companyName, business.ID, ownerUsername)
}

func findOrCreateBusiness(ctx context.Context, db *gorm.DB) (*models.Business, error) {
	var existing models.Business
	err := db.WithContext(ctx).Where("name = ?", companyName).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return models.CreateBusiness(ctx, &models.NewBusiness{
		Name:     companyName,
		Email:    "office@summithvac.example",
		Timezone: "America/Denver",
	})
}

func seedOwner(ctx context.Context, db *gorm.DB, businessId string) error {
	var existing models.User
	err := db.WithContext(ctx).Where("username = ?", ownerUsername).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	_, err = models.CreateUser(ctx, &models.NewUser{
		BusinessId: businessId,
		Username:   ownerUsername,
		Name:       ownerName,
		Password:   ownerPassword,
		Role:       models.UserRoleOwner,
	})
	return err
}

func seedDemoJobs(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.JobSignoff{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	reading501 := decimal.NewFromInt(501)
	reading450 := decimal.NewFromInt(450)
	scheduled := models.InspectionStatusScheduled
	passed := models.InspectionStatusPassed
	completed := time.Now().UTC().Add(-48 * time.Hour)

	// Blocked: reading over limit, photos incomplete, no warranty, inspection pending.
	jobs := []models.NewJobSignoff{
		{
			JobId:            "JOB-1001",
			CustomerName:     "Riley Thompson",
			JobAddress:       "412 Aspen Ct",
			JobType:          "Full system replacement",
			Subcontractor:    "ColdFront Mechanical",
			TechnicianName:   "M. Ortiz",
			TotalAmount:      decimal.NewFromInt(12800),
			MicronsReading:   &reading501,
			InspectionStatus: &scheduled,
			CompletedAt:      &completed,
			Photos: []models.NewJobPhoto{
				{Type: models.PhotoTypeBefore, ObjectKey: "seed/jobs/JOB-1001/before.jpg"},
			},
		},
		// Passing: everything satisfied; holdback releases on first evaluation.
		{
			JobId:              "JOB-1002",
			CustomerName:       "Dana Whitfield",
			JobAddress:         "88 Larkspur Ln",
			JobType:            "Condenser swap",
			Subcontractor:      "Peak Air Subs",
			TechnicianName:     "J. Kim",
			TotalAmount:        decimal.NewFromInt(6400),
			MicronsReading:     &reading450,
			WarrantyRegistered: utils.NewTrue(),
			InspectionStatus:   &passed,
			CompletedAt:        &completed,
			Photos: []models.NewJobPhoto{
				{Type: models.PhotoTypeBefore, ObjectKey: "seed/jobs/JOB-1002/before.jpg"},
				{Type: models.PhotoTypeAfter, ObjectKey: "seed/jobs/JOB-1002/after.jpg"},
				{Type: models.PhotoTypeEquipment, ObjectKey: "seed/jobs/JOB-1002/equipment.jpg"},
			},
		},
		// Pending: no facts submitted yet beyond completion.
		{
			JobId:          "JOB-1003",
			CustomerName:   "Ahmed Castillo",
			JobAddress:     "2301 Birchwood Dr",
			JobType:        "Mini-split install",
			Subcontractor:  "ColdFront Mechanical",
			TechnicianName: "M. Ortiz",
			TotalAmount:    decimal.NewFromInt(9200),
			CompletedAt:    &completed,
		},
	}

	for i := range jobs {
		if _, err := workflow.CompleteJob(ctx, &jobs[i]); err != nil {
			return err
		}
	}
	return nil
}
