package workflow

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/hvacops_backend/models"
)

// GateVerdict is the evaluation result for one job. It is derived on demand
// from the signoff facts and the tenant policy and never stored; the UI and
// the ledger both consume this exact shape.
type GateVerdict struct {
	MicronsPass     bool     `json:"microns_pass"`
	PhotosPass      bool     `json:"photos_pass"`
	WarrantyPass    bool     `json:"warranty_pass"`
	InspectionPass  bool     `json:"inspection_pass"`
	OverallPass     bool     `json:"overall_pass"`
	BlockingReasons []string `json:"blocking_reasons"`

	// definitive: at least one failing check is a hard failure (reading over
	// limit, inspection failed, warranty not registered) rather than evidence
	// the crew simply has not supplied yet.
	definitive bool
}

// QAStatus maps the verdict to the console badge. A job with only
// awaiting-evidence failures shows pending, not blocked.
func (v GateVerdict) QAStatus() models.QAStatus {
	if v.OverallPass {
		return models.QAStatusPassed
	}
	if v.definitive {
		return models.QAStatusBlocked
	}
	return models.QAStatusPending
}

// EvaluateGate is pure and deterministic: no I/O, no clock, no stored state.
// Checks disabled by policy are excluded from both the overall AND and the
// reasons list. Reason order is fixed: microns, photos, warranty, inspection.
func EvaluateGate(job *models.JobSignoff, policy *models.QAPolicy) GateVerdict {
	verdict := GateVerdict{
		MicronsPass:     true,
		PhotosPass:      true,
		WarrantyPass:    true,
		InspectionPass:  true,
		BlockingReasons: []string{},
	}

	if policy.BlockOnMicrons == nil || *policy.BlockOnMicrons {
		switch {
		case job.MicronsReading == nil:
			verdict.MicronsPass = false
			verdict.BlockingReasons = append(verdict.BlockingReasons, "Microns reading missing")
		case !job.MicronsReading.LessThan(policy.MicronsLimit):
			verdict.MicronsPass = false
			verdict.definitive = true
			verdict.BlockingReasons = append(verdict.BlockingReasons,
				fmt.Sprintf("Microns reading %s exceeds limit (%s)", job.MicronsReading.String(), policy.MicronsLimit.String()))
		}
	}

	if missing := missingPhotoTypes(job, policy.RequiredPhotos); len(missing) > 0 {
		verdict.PhotosPass = false
		verdict.BlockingReasons = append(verdict.BlockingReasons,
			"Missing required photos: "+strings.Join(missing, ", "))
	}

	if policy.RequireWarrantyReg == nil || *policy.RequireWarrantyReg {
		if job.WarrantyRegistered == nil || !*job.WarrantyRegistered {
			verdict.WarrantyPass = false
			verdict.definitive = true
			verdict.BlockingReasons = append(verdict.BlockingReasons, "Warranty not registered")
		}
	}

	if policy.RequireInspection == nil || *policy.RequireInspection {
		switch job.InspectionStatus {
		case models.InspectionStatusPassed:
			// ok
		case models.InspectionStatusFailed:
			verdict.InspectionPass = false
			verdict.definitive = true
			verdict.BlockingReasons = append(verdict.BlockingReasons, "Inspection failed")
		case models.InspectionStatusScheduled:
			verdict.InspectionPass = false
			verdict.BlockingReasons = append(verdict.BlockingReasons, "Inspection not yet completed")
		default:
			verdict.InspectionPass = false
			verdict.BlockingReasons = append(verdict.BlockingReasons, "Inspection pending")
		}
	}

	verdict.OverallPass = verdict.MicronsPass && verdict.PhotosPass && verdict.WarrantyPass && verdict.InspectionPass
	return verdict
}

// missingPhotoTypes returns the required categories without at least one
// photo, in the canonical before/after/equipment/serial order regardless of
// upload order.
func missingPhotoTypes(job *models.JobSignoff, required models.PhotoTypeList) []string {
	if len(required) == 0 {
		return nil
	}

	var missing []string
	for _, pt := range models.PhotoTypeOrder {
		if required.Contains(pt) && !job.HasPhotoOfType(pt) {
			missing = append(missing, string(pt))
		}
	}
	return missing
}
