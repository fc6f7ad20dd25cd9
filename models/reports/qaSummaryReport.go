package reports

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"bitbucket.org/mmdatafocus/hvacops_backend/workflow"
	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// QAStatsResponse feeds the dashboard tiles. Counts are derived by
// evaluating every job fresh; there is no second stored source of truth
// that could drift from per-job state.
type QAStatsResponse struct {
	Passed          int             `json:"passed"`
	Pending         int             `json:"pending"`
	Blocked         int             `json:"blocked"`
	HoldbackBalance decimal.Decimal `json:"holdback_balance"`
}

// GetQAStats scans the tenant's jobs, classifies each by verdict and sums
// the still-held retention.
func GetQAStats(ctx context.Context) (*QAStatsResponse, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.ValidationErrorf("business id is required")
	}

	cacheKey := "report:qa_stats:" + businessId
	if reportCacheEnabled() {
		var cached QAStatsResponse
		if hit, err := cacheGet(cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}
	started := time.Now()
	defer logSlowReport(ctx, "qa_stats", started, nil)

	db := config.GetDB()

	var jobs []*models.JobSignoff
	err := db.WithContext(ctx).
		Where("business_id = ?", businessId).
		Preload("Photos").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}

	policy, err := models.GetQAPolicy(ctx, businessId)
	if err != nil {
		return nil, err
	}

	stats := QAStatsResponse{HoldbackBalance: decimal.Zero}
	for _, job := range jobs {
		switch workflow.EvaluateGate(job, policy).QAStatus() {
		case models.QAStatusPassed:
			stats.Passed++
		case models.QAStatusBlocked:
			stats.Blocked++
		default:
			stats.Pending++
		}
	}

	var balance decimal.NullDecimal
	err = db.WithContext(ctx).Model(&models.HoldbackEntry{}).
		Where("business_id = ? AND status = ?", businessId, models.HoldbackStatusHeld).
		Select("SUM(amount)").Scan(&balance).Error
	if err != nil {
		return nil, err
	}
	if balance.Valid {
		stats.HoldbackBalance = balance.Decimal
	}

	if reportCacheEnabled() {
		_ = cacheSet(cacheKey, &stats, reportCacheTTL())
	}
	return &stats, nil
}

type holdbackLedgerRow struct {
	JobId         string
	CustomerName  string
	Subcontractor string
	Amount        decimal.Decimal
	Percent       decimal.Decimal
	Status        string
	ReleaseBasis  *string
	ReleasedAt    *string
}

// ExportHoldbackLedgerExcel builds the holdback ledger workbook for download.
func ExportHoldbackLedgerExcel(ctx context.Context) (*excelize.File, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, utils.ValidationErrorf("business id is required")
	}

	sql := `
SELECT
	h.job_id,
	j.customer_name,
	h.subcontractor,
	h.amount,
	h.percent,
	h.status,
	h.release_basis,
	DATE_FORMAT(h.released_at, '%Y-%m-%d %H:%i') AS released_at
FROM
	holdback_entries h
	LEFT JOIN job_signoffs j ON j.job_id = h.job_id
WHERE
	h.business_id = ?
ORDER BY
	h.created_at DESC
`

	var rows []*holdbackLedgerRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, businessId).Scan(&rows).Error; err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	// Add headers
	f.SetCellValue(sheet, "A1", "JobId")
	f.SetCellValue(sheet, "B1", "Customer")
	f.SetCellValue(sheet, "C1", "Subcontractor")
	f.SetCellValue(sheet, "D1", "Amount")
	f.SetCellValue(sheet, "E1", "Percent")
	f.SetCellValue(sheet, "F1", "Status")
	f.SetCellValue(sheet, "G1", "ReleaseBasis")
	f.SetCellValue(sheet, "H1", "ReleasedAt")

	// Add data
	for i, d := range rows {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, d.JobId)
		f.SetCellValue(sheet, "B"+row, d.CustomerName)
		f.SetCellValue(sheet, "C"+row, d.Subcontractor)
		f.SetCellValue(sheet, "D"+row, d.Amount.StringFixed(2))
		f.SetCellValue(sheet, "E"+row, d.Percent.StringFixed(2))
		f.SetCellValue(sheet, "F"+row, d.Status)
		if d.ReleaseBasis != nil {
			f.SetCellValue(sheet, "G"+row, *d.ReleaseBasis)
		}
		if d.ReleasedAt != nil {
			f.SetCellValue(sheet, "H"+row, *d.ReleasedAt)
		}
	}

	return f, nil
}
