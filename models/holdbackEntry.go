package models

import (
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/shopspring/decimal"
)

// HoldbackEntry is one row of the subcontractor retention ledger. Amount and
// Percent are snapshots taken when the job completes; later policy changes
// never alter them. The only mutable fields are the release ones, and only
// through the held -> released / held -> forceReleased transitions.
type HoldbackEntry struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;index" json:"business_id"`
	JobId         string          `gorm:"size:64;not null;uniqueIndex" json:"job_id"`
	Subcontractor string          `gorm:"size:100" json:"subcontractor"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Percent       decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"percent"`
	Status        HoldbackStatus  `gorm:"type:enum('held','released','forceReleased');not null;default:'held';index" json:"status"`
	ReleaseBasis  *ReleaseBasis   `gorm:"type:enum('gatePassed','override')" json:"release_basis"`
	ReleasedAt    *time.Time      `json:"released_at"`
	ReleasedBy    *int            `json:"released_by"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// ComputeHoldbackAmount rounds total * percent / 100 to cents, half up.
func ComputeHoldbackAmount(total decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return total.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}

// CanRelease guards the held -> released/forceReleased transition. Both
// terminal states reject any further transition.
func (e *HoldbackEntry) CanRelease() error {
	switch e.Status {
	case HoldbackStatusHeld:
		return nil
	case HoldbackStatusReleased:
		return utils.InvalidStateErrorf("holdback for job %s is already released", e.JobId)
	case HoldbackStatusForceReleased:
		return utils.InvalidStateErrorf("holdback for job %s was already force released", e.JobId)
	default:
		return utils.InvalidStateErrorf("holdback for job %s is in unknown state %s", e.JobId, e.Status)
	}
}

// markReleased stamps the release fields in memory. Callers persist inside
// their own transaction.
func (e *HoldbackEntry) markReleased(status HoldbackStatus, basis ReleaseBasis, userId int, at time.Time) {
	e.Status = status
	e.ReleaseBasis = &basis
	e.ReleasedAt = &at
	e.ReleasedBy = &userId
}

// MarkReleased transitions held -> released with the gate-passed basis.
func (e *HoldbackEntry) MarkReleased(userId int, at time.Time) error {
	if err := e.CanRelease(); err != nil {
		return err
	}
	e.markReleased(HoldbackStatusReleased, ReleaseBasisGatePassed, userId, at)
	return nil
}

// MarkForceReleased transitions held -> forceReleased with the override basis.
func (e *HoldbackEntry) MarkForceReleased(userId int, at time.Time) error {
	if err := e.CanRelease(); err != nil {
		return err
	}
	e.markReleased(HoldbackStatusForceReleased, ReleaseBasisOverride, userId, at)
	return nil
}
