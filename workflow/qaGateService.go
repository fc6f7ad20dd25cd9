package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"gorm.io/gorm"
)

// JobStatus is what the console renders per job: the raw record, the fresh
// verdict, the derived badge, the ledger entry and payout eligibility.
// PayoutEligible differs from the verdict only when a qaOverride exists; the
// true check results stay visible for audit.
type JobStatus struct {
	Record         *models.JobSignoff    `json:"record"`
	Verdict        GateVerdict           `json:"verdict"`
	QAStatus       models.QAStatus       `json:"qa_status"`
	Holdback       *models.HoldbackEntry `json:"holdback"`
	PayoutEligible bool                  `json:"payout_eligible"`
}

func buildJobStatus(job *models.JobSignoff, policy *models.QAPolicy) *JobStatus {
	verdict := EvaluateGate(job, policy)

	hasQAOverride := false
	for _, o := range job.Overrides {
		if o.Type == models.OverrideTypeQAGate {
			hasQAOverride = true
			break
		}
	}

	return &JobStatus{
		Record:         job,
		Verdict:        verdict,
		QAStatus:       verdict.QAStatus(),
		Holdback:       job.Holdback,
		PayoutEligible: verdict.OverallPass || hasQAOverride,
	}
}

func fetchJob(ctx context.Context, tx *gorm.DB, businessId string, jobId string) (*models.JobSignoff, error) {
	var job models.JobSignoff
	err := tx.WithContext(ctx).
		Where("business_id = ? AND job_id = ?", businessId, jobId).
		Preload("Photos").
		Preload("Holdback").
		Preload("Overrides").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func businessIdFromContext(ctx context.Context) (string, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return "", utils.ValidationErrorf("business id is required")
	}
	return businessId, nil
}

// GetJobStatus recomputes the verdict fresh on every call; repeated calls
// without intervening mutation return the same result.
func GetJobStatus(ctx context.Context, jobId string) (*JobStatus, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}

	job, err := models.GetJobSignoff(ctx, businessId, jobId)
	if err != nil {
		return nil, err
	}
	policy, err := models.GetQAPolicy(ctx, businessId)
	if err != nil {
		return nil, err
	}
	return buildJobStatus(job, policy), nil
}

// CompleteJob records a technician signoff and opens the held ledger entry.
// A job can arrive with every fact already satisfied; the entry it just
// opened then releases right away, through the same step a later signoff
// update would take.
func CompleteJob(ctx context.Context, input *models.NewJobSignoff) (*JobStatus, error) {
	job, err := models.CreateJobSignoff(ctx, input)
	if err != nil {
		return nil, err
	}
	policy, err := models.GetQAPolicy(ctx, job.BusinessId)
	if err != nil {
		return nil, err
	}

	if EvaluateGate(job, policy).OverallPass {
		err = withJobLock(ctx, job.JobId, func(conn *gorm.DB) error {
			return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				entry, err := fetchHoldbackEntry(ctx, tx, job.BusinessId, job.JobId)
				if err != nil {
					return err
				}
				if entry.Status != models.HoldbackStatusHeld {
					return nil
				}
				if err := ReleaseOnGatePass(ctx, tx, entry); err != nil {
					return err
				}
				job.Holdback = entry
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	return buildJobStatus(job, policy), nil
}

// withJobLock pins one DB connection, takes the per-job advisory lock and
// runs fn on that connection. All read-modify-write sequences on a job go
// through here so concurrent updates serialize per job.
func withJobLock(ctx context.Context, jobId string, fn func(conn *gorm.DB) error) error {
	redisLock := tryRedisJobLock(ctx, jobId)
	defer releaseRedisJobLock(ctx, redisLock)

	db := config.GetDB()
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := AcquireJobLock(conn, jobId); err != nil {
			return utils.UnavailableError(err)
		}
		defer ReleaseJobLock(conn, jobId)
		return fn(conn)
	})
}

// UpdateSignoff merges partial facts into the record, re-evaluates the gate
// against the CURRENT record state and, if now passing while the holdback is
// still held, releases it in the same transaction.
func UpdateSignoff(ctx context.Context, jobId string, update *models.SignoffUpdate) (*JobStatus, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	policy, err := models.GetQAPolicy(ctx, businessId)
	if err != nil {
		return nil, err
	}

	var status *JobStatus
	err = withJobLock(ctx, jobId, func(conn *gorm.DB) error {
		return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			job, err := fetchJob(ctx, tx, businessId, jobId)
			if err != nil {
				return err
			}
			before := *job

			if err := models.ApplySignoffUpdate(ctx, tx, job, update); err != nil {
				return err
			}
			if err := models.SaveHistory(tx, "UPDATE", jobId, "job_signoffs", &before, job, "Signoff facts updated"); err != nil {
				return err
			}

			verdict := EvaluateGate(job, policy)
			if verdict.OverallPass {
				entry, err := fetchHoldbackEntry(ctx, tx, businessId, jobId)
				if err != nil && !utils.IsNotFound(err) {
					return err
				}
				if entry != nil && entry.Status == models.HoldbackStatusHeld {
					if err := ReleaseOnGatePass(ctx, tx, entry); err != nil {
						return err
					}
					job.Holdback = entry
				}
			}

			status = buildJobStatus(job, policy)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// OverrideGate writes a qaOverride audit record. It does not flip the stored
// check results and it does not touch the ledger; only payout eligibility is
// affected, derived on read.
func OverrideGate(ctx context.Context, jobId string, reason string) (*JobStatus, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if utils.IsBlank(reason) {
		return nil, utils.ValidationErrorf("override reason is required")
	}

	err = withJobLock(ctx, jobId, func(conn *gorm.DB) error {
		return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := fetchJob(ctx, tx, businessId, jobId); err != nil {
				return err
			}
			record, err := RecordOverride(ctx, tx, businessId, jobId, models.OverrideTypeQAGate, reason)
			if err != nil {
				return err
			}
			return models.PublishQAEvent(ctx, tx, businessId, jobId, models.QAEventGateOverridden, record)
		})
	})
	if err != nil {
		return nil, err
	}
	return GetJobStatus(ctx, jobId)
}

// ForceReleaseHoldback writes the holdbackForceRelease audit record in its
// own transaction and only then transitions the ledger. The per-job lock is
// held across both, so nothing interleaves; a crash in between leaves the
// override on record with the money still held, which is the recoverable
// side of that failure.
func ForceReleaseHoldback(ctx context.Context, jobId string, reason string) (*JobStatus, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if utils.IsBlank(reason) {
		return nil, utils.ValidationErrorf("override reason is required")
	}

	err = withJobLock(ctx, jobId, func(conn *gorm.DB) error {
		entry, err := fetchHoldbackEntry(ctx, conn, businessId, jobId)
		if err != nil {
			return err
		}
		if err := entry.CanRelease(); err != nil {
			return err
		}

		// Audit record first, committed on its own.
		err = conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, err := RecordOverride(ctx, tx, businessId, jobId, models.OverrideTypeHoldbackForceRelease, reason)
			return err
		})
		if err != nil {
			return err
		}

		// Then the ledger transition.
		return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			entry, err := fetchHoldbackEntry(ctx, tx, businessId, jobId)
			if err != nil {
				return err
			}
			return ForceRelease(ctx, tx, entry)
		})
	})
	if err != nil {
		return nil, err
	}
	return GetJobStatus(ctx, jobId)
}

// ListJobs returns job statuses newest first, optionally filtered by badge.
// The filter applies after evaluation since the badge is derived.
func ListJobs(ctx context.Context, limit int, offset int, statusFilter *models.QAStatus) ([]*JobStatus, error) {
	businessId, err := businessIdFromContext(ctx)
	if err != nil {
		return nil, err
	}

	jobs, err := models.ListJobSignoffs(ctx, businessId, limit, offset)
	if err != nil {
		return nil, err
	}
	policy, err := models.GetQAPolicy(ctx, businessId)
	if err != nil {
		return nil, err
	}

	statuses := make([]*JobStatus, 0, len(jobs))
	for _, job := range jobs {
		status := buildJobStatus(job, policy)
		if statusFilter != nil && status.QAStatus != *statusFilter {
			continue
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
