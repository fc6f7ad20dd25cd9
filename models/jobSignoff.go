package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// JobSignoff is a completed field job awaiting (or past) QA gate review.
// Facts recorded by the crew accumulate here; the gate verdict itself is
// computed on read and never stored.
type JobSignoff struct {
	JobId              string           `gorm:"primary_key;size:64" json:"job_id"`
	BusinessId         string           `gorm:"size:64;not null;index" json:"business_id"`
	CustomerName       string           `gorm:"size:100;not null" json:"customer_name"`
	JobAddress         string           `gorm:"size:255" json:"job_address"`
	JobType            string           `gorm:"size:50" json:"job_type"`
	Subcontractor      string           `gorm:"size:100" json:"subcontractor"`
	TechnicianName     string           `gorm:"size:100" json:"technician_name"`
	TotalAmount        decimal.Decimal  `gorm:"type:decimal(14,2);not null" json:"total_amount"`
	MicronsReading     *decimal.Decimal `gorm:"type:decimal(10,2)" json:"microns_reading"`
	WarrantyRegistered *bool            `gorm:"not null;default:false" json:"warranty_registered"`
	InspectionStatus   InspectionStatus `gorm:"type:enum('pending','scheduled','passed','failed');not null;default:'pending'" json:"inspection_status"`
	CompletedAt        time.Time        `gorm:"index;not null" json:"completed_at"`
	Photos             []JobPhoto       `gorm:"foreignKey:JobId;references:JobId" json:"photos"`
	Holdback           *HoldbackEntry   `gorm:"foreignKey:JobId;references:JobId" json:"holdback"`
	Overrides          []OverrideRecord `gorm:"foreignKey:JobId;references:JobId" json:"overrides"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// JobPhoto is one evidence photo attached to a signoff.
type JobPhoto struct {
	ID           int       `gorm:"primary_key" json:"id"`
	BusinessId   string    `gorm:"size:64;not null;index" json:"business_id"`
	JobId        string    `gorm:"size:64;not null;index" json:"job_id"`
	Type         PhotoType `gorm:"type:enum('before','after','equipment','serial');not null" json:"type"`
	ObjectKey    string    `gorm:"size:255;not null" json:"object_key"`
	Url          string    `gorm:"size:500" json:"url"`
	ThumbnailUrl string    `gorm:"size:500" json:"thumbnail_url"`
	UploadedBy   int       `json:"uploaded_by"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewJobPhoto struct {
	Type      PhotoType `json:"type" binding:"required"`
	ObjectKey string    `json:"object_key" binding:"required"`
}

type NewJobSignoff struct {
	JobId              string           `json:"job_id"`
	CustomerName       string           `json:"customer_name" binding:"required"`
	JobAddress         string           `json:"job_address"`
	JobType            string           `json:"job_type"`
	Subcontractor      string           `json:"subcontractor"`
	TechnicianName     string           `json:"technician_name"`
	TotalAmount        decimal.Decimal  `json:"total_amount" binding:"required"`
	MicronsReading     *decimal.Decimal `json:"microns_reading"`
	WarrantyRegistered *bool            `json:"warranty_registered"`
	InspectionStatus   *InspectionStatus `json:"inspection_status"`
	CompletedAt        *time.Time       `json:"completed_at"`
	Photos             []NewJobPhoto    `json:"photos"`
}

// SignoffUpdate carries partial facts from the field app or the console.
// Nil pointer means "not supplied"; supplied facts overwrite.
type SignoffUpdate struct {
	MicronsReading     *decimal.Decimal  `json:"microns_reading"`
	WarrantyRegistered *bool             `json:"warranty_registered"`
	InspectionStatus   *InspectionStatus `json:"inspection_status"`
	Photos             []NewJobPhoto     `json:"photos"`
}

func (input *NewJobSignoff) validate() error {
	if strings.TrimSpace(input.CustomerName) == "" {
		return utils.ValidationErrorf("customer name is required")
	}
	if !input.TotalAmount.IsPositive() {
		return utils.ValidationErrorf("total amount must be positive")
	}
	if input.MicronsReading != nil && input.MicronsReading.IsNegative() {
		return utils.ValidationErrorf("microns reading cannot be negative")
	}
	if input.InspectionStatus != nil && !input.InspectionStatus.IsValid() {
		return utils.ValidationErrorf("%s is not a valid inspection status", *input.InspectionStatus)
	}
	for _, p := range input.Photos {
		if !p.Type.IsValid() {
			return utils.ValidationErrorf("%s is not a valid photo type", p.Type)
		}
	}
	return nil
}

func (update *SignoffUpdate) Validate() error {
	if update.MicronsReading != nil && update.MicronsReading.IsNegative() {
		return utils.ValidationErrorf("microns reading cannot be negative")
	}
	if update.InspectionStatus != nil && !update.InspectionStatus.IsValid() {
		return utils.ValidationErrorf("%s is not a valid inspection status", *update.InspectionStatus)
	}
	for _, p := range update.Photos {
		if !p.Type.IsValid() {
			return utils.ValidationErrorf("%s is not a valid photo type", p.Type)
		}
	}
	return nil
}

// IsEmpty reports whether the update carries no facts at all.
func (update *SignoffUpdate) IsEmpty() bool {
	return update.MicronsReading == nil &&
		update.WarrantyRegistered == nil &&
		update.InspectionStatus == nil &&
		len(update.Photos) == 0
}

// CreateJobSignoff records a completed job, snapshots the tenant's holdback
// policy into a held ledger entry and enqueues qa.job.completed, all in one
// transaction.
func CreateJobSignoff(ctx context.Context, input *NewJobSignoff) (*JobSignoff, error) {
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

	jobId := strings.TrimSpace(input.JobId)
	if jobId == "" {
		jobId = uuid.NewString()
	}

	completedAt := time.Now().UTC()
	if input.CompletedAt != nil {
		completedAt = input.CompletedAt.UTC()
	}

	job := JobSignoff{
		JobId:              jobId,
		BusinessId:         businessId,
		CustomerName:       input.CustomerName,
		JobAddress:         input.JobAddress,
		JobType:            input.JobType,
		Subcontractor:      input.Subcontractor,
		TechnicianName:     input.TechnicianName,
		TotalAmount:        input.TotalAmount,
		MicronsReading:     input.MicronsReading,
		WarrantyRegistered: utils.NewFalse(),
		InspectionStatus:   InspectionStatusPending,
		CompletedAt:        completedAt,
	}
	if input.WarrantyRegistered != nil {
		job.WarrantyRegistered = input.WarrantyRegistered
	}
	if input.InspectionStatus != nil {
		job.InspectionStatus = *input.InspectionStatus
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	for _, p := range input.Photos {
		job.Photos = append(job.Photos, JobPhoto{
			BusinessId: businessId,
			JobId:      jobId,
			Type:       p.Type,
			ObjectKey:  p.ObjectKey,
			Url:        utils.BuildObjectAccessURL(p.ObjectKey),
			UploadedBy: userId,
		})
	}

	entry := HoldbackEntry{
		BusinessId:    businessId,
		JobId:         jobId,
		Subcontractor: input.Subcontractor,
		Amount:        ComputeHoldbackAmount(input.TotalAmount, policy.HoldbackPercent),
		Percent:       policy.HoldbackPercent,
		Status:        HoldbackStatusHeld,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&JobSignoff{}).Where("job_id = ?", jobId).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.ValidationErrorf("job %s already has a signoff", jobId)
		}
		if err := tx.Create(&job).Error; err != nil {
			return err
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		if err := SaveHistory(tx, "CREATE", jobId, "job_signoffs", nil, &job, "Job completed; holdback "+entry.Amount.StringFixed(2)+" held"); err != nil {
			return err
		}
		return PublishQAEvent(ctx, tx, businessId, jobId, QAEventJobCompleted, &entry)
	})
	if err != nil {
		return nil, err
	}

	job.Holdback = &entry
	return &job, nil
}

// GetJobSignoff loads a job with photos, holdback and overrides.
func GetJobSignoff(ctx context.Context, businessId string, jobId string) (*JobSignoff, error) {
	return utils.FetchModel[JobSignoff](ctx, businessId, "job_id", jobId, "Photos", "Holdback", "Overrides")
}

// ListJobSignoffs returns the tenant's jobs, newest completion first.
// QA-status filtering happens after verdict evaluation in the caller.
func ListJobSignoffs(ctx context.Context, businessId string, limit int, offset int) ([]*JobSignoff, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	db := config.GetDB()
	var jobs []*JobSignoff
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Preload("Photos").
		Preload("Holdback").
		Preload("Overrides").
		Order("completed_at DESC, job_id DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ApplySignoffUpdate merges supplied facts onto the job and appends photo
// rows inside the caller's transaction. The caller holds the per-job lock.
func ApplySignoffUpdate(ctx context.Context, tx *gorm.DB, job *JobSignoff, update *SignoffUpdate) error {
	updates := map[string]interface{}{}
	if update.MicronsReading != nil {
		job.MicronsReading = update.MicronsReading
		updates["microns_reading"] = *update.MicronsReading
	}
	if update.WarrantyRegistered != nil {
		job.WarrantyRegistered = update.WarrantyRegistered
		updates["warranty_registered"] = *update.WarrantyRegistered
	}
	if update.InspectionStatus != nil {
		job.InspectionStatus = *update.InspectionStatus
		updates["inspection_status"] = *update.InspectionStatus
	}

	if len(updates) > 0 {
		if err := tx.Model(&JobSignoff{}).Where("job_id = ?", job.JobId).Updates(updates).Error; err != nil {
			return err
		}
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	for _, p := range update.Photos {
		photo := JobPhoto{
			BusinessId: job.BusinessId,
			JobId:      job.JobId,
			Type:       p.Type,
			ObjectKey:  p.ObjectKey,
			Url:        utils.BuildObjectAccessURL(p.ObjectKey),
			UploadedBy: userId,
		}
		if err := tx.Create(&photo).Error; err != nil {
			return err
		}
		job.Photos = append(job.Photos, photo)
	}
	return nil
}

// HasPhotoOfType reports whether at least one photo of the category exists.
func (job *JobSignoff) HasPhotoOfType(pt PhotoType) bool {
	for _, p := range job.Photos {
		if p.Type == pt {
			return true
		}
	}
	return false
}
