package models

import (
	"testing"

	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/shopspring/decimal"
)

func TestQAPolicyUpdateValidate(t *testing.T) {
	ok := decimal.NewFromInt(15)
	if err := (&QAPolicyUpdate{HoldbackPercent: &ok}).validate(); err != nil {
		t.Fatalf("valid percent rejected: %v", err)
	}

	over := decimal.NewFromInt(101)
	if err := (&QAPolicyUpdate{HoldbackPercent: &over}).validate(); !utils.IsValidationError(err) {
		t.Fatalf("percent over 100: got %v, want validation error", err)
	}

	negative := decimal.NewFromInt(-1)
	if err := (&QAPolicyUpdate{HoldbackPercent: &negative}).validate(); !utils.IsValidationError(err) {
		t.Fatalf("negative percent: got %v, want validation error", err)
	}

	zeroLimit := decimal.Zero
	if err := (&QAPolicyUpdate{MicronsLimit: &zeroLimit}).validate(); !utils.IsValidationError(err) {
		t.Fatalf("zero microns limit: got %v, want validation error", err)
	}

	bad := PhotoTypeList{PhotoType("selfie")}
	if err := (&QAPolicyUpdate{RequiredPhotos: &bad}).validate(); !utils.IsValidationError(err) {
		t.Fatalf("bogus photo type: got %v, want validation error", err)
	}

	photos := PhotoTypeList{PhotoTypeBefore, PhotoTypeSerial}
	if err := (&QAPolicyUpdate{RequiredPhotos: &photos}).validate(); err != nil {
		t.Fatalf("valid photo list rejected: %v", err)
	}
}

func TestDefaultQAPolicy(t *testing.T) {
	policy := DefaultQAPolicy("biz-9")
	if policy.HoldbackPercent.Cmp(decimal.NewFromInt(10)) != 0 {
		t.Fatalf("default percent = %s, want 10", policy.HoldbackPercent)
	}
	if policy.MicronsLimit.Cmp(decimal.NewFromInt(500)) != 0 {
		t.Fatalf("default limit = %s, want 500", policy.MicronsLimit)
	}
	for _, pt := range []PhotoType{PhotoTypeBefore, PhotoTypeAfter, PhotoTypeEquipment} {
		if !policy.RequiredPhotos.Contains(pt) {
			t.Fatalf("default photos missing %s", pt)
		}
	}
	if policy.RequiredPhotos.Contains(PhotoTypeSerial) {
		t.Fatalf("serial must not be required by default")
	}
	if policy.RequireInspection == nil || !*policy.RequireInspection {
		t.Fatalf("inspection must be required by default")
	}
	if policy.RequireWarrantyReg == nil || !*policy.RequireWarrantyReg {
		t.Fatalf("warranty registration must be required by default")
	}
}
