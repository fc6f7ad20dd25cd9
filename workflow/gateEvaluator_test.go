package workflow

import (
	"encoding/json"
	"reflect"
	"testing"

	"bitbucket.org/mmdatafocus/hvacops_backend/models"
	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/shopspring/decimal"
)

func testPolicy() *models.QAPolicy {
	return &models.QAPolicy{
		BusinessId:         "biz-1",
		HoldbackPercent:    decimal.NewFromInt(10),
		BlockOnMicrons:     utils.NewTrue(),
		MicronsLimit:       decimal.NewFromInt(500),
		RequiredPhotos:     models.PhotoTypeList{models.PhotoTypeBefore, models.PhotoTypeAfter, models.PhotoTypeEquipment},
		RequireInspection:  utils.NewTrue(),
		RequireWarrantyReg: utils.NewTrue(),
	}
}

func testJob(mutate func(*models.JobSignoff)) *models.JobSignoff {
	job := &models.JobSignoff{
		JobId:              "JOB-1",
		BusinessId:         "biz-1",
		CustomerName:       "Test Customer",
		TotalAmount:        decimal.NewFromInt(10000),
		WarrantyRegistered: utils.NewFalse(),
		InspectionStatus:   models.InspectionStatusPending,
	}
	if mutate != nil {
		mutate(job)
	}
	return job
}

func withPhotos(job *models.JobSignoff, types ...models.PhotoType) {
	for _, pt := range types {
		job.Photos = append(job.Photos, models.JobPhoto{JobId: job.JobId, Type: pt})
	}
}

func TestEvaluateGate_AllChecksFailing(t *testing.T) {
	reading := decimal.NewFromInt(501)
	job := testJob(func(j *models.JobSignoff) {
		j.MicronsReading = &reading
		j.InspectionStatus = models.InspectionStatusScheduled
		withPhotos(j, models.PhotoTypeBefore)
	})

	verdict := EvaluateGate(job, testPolicy())

	if verdict.OverallPass {
		t.Fatalf("expected overall fail")
	}
	if verdict.MicronsPass || verdict.PhotosPass || verdict.WarrantyPass || verdict.InspectionPass {
		t.Fatalf("expected every sub-check to fail: %+v", verdict)
	}
	want := []string{
		"Microns reading 501 exceeds limit (500)",
		"Missing required photos: after, equipment",
		"Warranty not registered",
		"Inspection not yet completed",
	}
	if !reflect.DeepEqual(verdict.BlockingReasons, want) {
		t.Fatalf("reasons mismatch:\n got  %v\n want %v", verdict.BlockingReasons, want)
	}
}

func TestEvaluateGate_AllChecksPassing(t *testing.T) {
	reading := decimal.NewFromInt(450)
	job := testJob(func(j *models.JobSignoff) {
		j.MicronsReading = &reading
		j.WarrantyRegistered = utils.NewTrue()
		j.InspectionStatus = models.InspectionStatusPassed
		withPhotos(j, models.PhotoTypeEquipment, models.PhotoTypeBefore, models.PhotoTypeAfter)
	})

	verdict := EvaluateGate(job, testPolicy())

	if !verdict.OverallPass {
		t.Fatalf("expected overall pass, reasons: %v", verdict.BlockingReasons)
	}
	if len(verdict.BlockingReasons) != 0 {
		t.Fatalf("expected no reasons, got %v", verdict.BlockingReasons)
	}
	if verdict.QAStatus() != models.QAStatusPassed {
		t.Fatalf("expected passed badge, got %s", verdict.QAStatus())
	}
}

func TestEvaluateGate_MissingReadingIsDistinctFromExceeded(t *testing.T) {
	policy := testPolicy()

	missing := EvaluateGate(testJob(nil), policy)
	if missing.MicronsPass {
		t.Fatalf("expected microns fail for missing reading")
	}
	if missing.BlockingReasons[0] != "Microns reading missing" {
		t.Fatalf("unexpected missing-reading reason: %q", missing.BlockingReasons[0])
	}

	reading := decimal.NewFromInt(620)
	exceeded := EvaluateGate(testJob(func(j *models.JobSignoff) { j.MicronsReading = &reading }), policy)
	if exceeded.BlockingReasons[0] != "Microns reading 620 exceeds limit (500)" {
		t.Fatalf("unexpected exceeds reason: %q", exceeded.BlockingReasons[0])
	}
	if missing.BlockingReasons[0] == exceeded.BlockingReasons[0] {
		t.Fatalf("missing and exceeded reasons must be distinguishable")
	}
}

func TestEvaluateGate_ReadingAtLimitFails(t *testing.T) {
	reading := decimal.NewFromInt(500)
	verdict := EvaluateGate(testJob(func(j *models.JobSignoff) { j.MicronsReading = &reading }), testPolicy())
	if verdict.MicronsPass {
		t.Fatalf("reading equal to the limit must fail (strict less-than)")
	}
}

func TestEvaluateGate_InspectionReasonDistinctions(t *testing.T) {
	policy := testPolicy()
	cases := []struct {
		status models.InspectionStatus
		reason string
	}{
		{models.InspectionStatusPending, "Inspection pending"},
		{models.InspectionStatusScheduled, "Inspection not yet completed"},
		{models.InspectionStatusFailed, "Inspection failed"},
	}
	for _, tc := range cases {
		verdict := EvaluateGate(testJob(func(j *models.JobSignoff) { j.InspectionStatus = tc.status }), policy)
		if verdict.InspectionPass {
			t.Fatalf("%s: expected inspection fail", tc.status)
		}
		last := verdict.BlockingReasons[len(verdict.BlockingReasons)-1]
		if last != tc.reason {
			t.Fatalf("%s: got reason %q, want %q", tc.status, last, tc.reason)
		}
	}
}

func TestEvaluateGate_DisabledChecksAreExcluded(t *testing.T) {
	policy := testPolicy()
	policy.BlockOnMicrons = utils.NewFalse()
	policy.RequiredPhotos = models.PhotoTypeList{}
	policy.RequireInspection = utils.NewFalse()
	policy.RequireWarrantyReg = utils.NewFalse()

	// Worst possible record still passes when every check is toggled off.
	verdict := EvaluateGate(testJob(func(j *models.JobSignoff) {
		j.InspectionStatus = models.InspectionStatusFailed
	}), policy)

	if !verdict.OverallPass {
		t.Fatalf("expected pass with all checks disabled, reasons: %v", verdict.BlockingReasons)
	}
	if len(verdict.BlockingReasons) != 0 {
		t.Fatalf("disabled checks must never produce reasons, got %v", verdict.BlockingReasons)
	}
}

func TestEvaluateGate_SingleDisabledCheckDropsItsReason(t *testing.T) {
	policy := testPolicy()
	policy.RequireWarrantyReg = utils.NewFalse()

	verdict := EvaluateGate(testJob(nil), policy)
	for _, reason := range verdict.BlockingReasons {
		if reason == "Warranty not registered" {
			t.Fatalf("warranty reason must not appear when the check is disabled")
		}
	}
	if !verdict.WarrantyPass {
		t.Fatalf("disabled warranty check must report pass")
	}
}

func TestEvaluateGate_PhotoOrderIsCanonical(t *testing.T) {
	// Upload order must not affect the missing-photos listing.
	job := testJob(func(j *models.JobSignoff) {
		withPhotos(j, models.PhotoTypeAfter)
	})
	verdict := EvaluateGate(job, testPolicy())

	var photoReason string
	for _, r := range verdict.BlockingReasons {
		if len(r) > 0 && r[0] == 'M' && r != "Microns reading missing" {
			photoReason = r
		}
	}
	if photoReason != "Missing required photos: before, equipment" {
		t.Fatalf("unexpected photo reason: %q", photoReason)
	}
}

func TestEvaluateGate_Deterministic(t *testing.T) {
	reading := decimal.NewFromInt(501)
	job := testJob(func(j *models.JobSignoff) {
		j.MicronsReading = &reading
		withPhotos(j, models.PhotoTypeBefore)
	})
	policy := testPolicy()

	a, err := json.Marshal(EvaluateGate(job, policy))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(EvaluateGate(job, policy))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("verdicts differ for identical input:\n%s\n%s", a, b)
	}
}

func TestEvaluateGate_QAStatusClassification(t *testing.T) {
	policy := testPolicy()

	// Only awaiting-evidence failures: pending, not blocked.
	pending := EvaluateGate(testJob(func(j *models.JobSignoff) {
		j.WarrantyRegistered = utils.NewTrue()
		j.InspectionStatus = models.InspectionStatusScheduled
	}), policy)
	if pending.QAStatus() != models.QAStatusPending {
		t.Fatalf("expected pending, got %s", pending.QAStatus())
	}

	// A definitive failure flips the badge to blocked.
	blocked := EvaluateGate(testJob(func(j *models.JobSignoff) {
		j.InspectionStatus = models.InspectionStatusFailed
	}), policy)
	if blocked.QAStatus() != models.QAStatusBlocked {
		t.Fatalf("expected blocked, got %s", blocked.QAStatus())
	}
}
