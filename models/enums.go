package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// PhotoType identifies a required evidence photo category on a job signoff.
type PhotoType string

const (
	PhotoTypeBefore    PhotoType = "before"
	PhotoTypeAfter     PhotoType = "after"
	PhotoTypeEquipment PhotoType = "equipment"
	PhotoTypeSerial    PhotoType = "serial"
)

// PhotoTypeOrder is the canonical ordering used when listing photo
// categories (e.g. in gate failure reasons).
var PhotoTypeOrder = []PhotoType{PhotoTypeBefore, PhotoTypeAfter, PhotoTypeEquipment, PhotoTypeSerial}

func (e PhotoType) IsValid() bool {
	switch e {
	case PhotoTypeBefore, PhotoTypeAfter, PhotoTypeEquipment, PhotoTypeSerial:
		return true
	}
	return false
}

func (e PhotoType) String() string {
	return string(e)
}

// ParsePhotoType validates a client-supplied photo category.
func ParsePhotoType(s string) (PhotoType, error) {
	pt := PhotoType(s)
	if !pt.IsValid() {
		return "", fmt.Errorf("%s is not a valid photo type", s)
	}
	return pt, nil
}

// InspectionStatus tracks the city/third-party inspection lifecycle of a job.
type InspectionStatus string

const (
	InspectionStatusPending   InspectionStatus = "pending"
	InspectionStatusScheduled InspectionStatus = "scheduled"
	InspectionStatusPassed    InspectionStatus = "passed"
	InspectionStatusFailed    InspectionStatus = "failed"
)

func (e InspectionStatus) IsValid() bool {
	switch e {
	case InspectionStatusPending, InspectionStatusScheduled, InspectionStatusPassed, InspectionStatusFailed:
		return true
	}
	return false
}

func (e InspectionStatus) String() string {
	return string(e)
}

// HoldbackStatus is the ledger state of a job's retained subcontractor amount.
type HoldbackStatus string

const (
	HoldbackStatusHeld          HoldbackStatus = "held"
	HoldbackStatusReleased      HoldbackStatus = "released"
	HoldbackStatusForceReleased HoldbackStatus = "forceReleased"
)

func (e HoldbackStatus) IsValid() bool {
	switch e {
	case HoldbackStatusHeld, HoldbackStatusReleased, HoldbackStatusForceReleased:
		return true
	}
	return false
}

func (e HoldbackStatus) String() string {
	return string(e)
}

// ReleaseBasis records WHY a holdback left the held state.
type ReleaseBasis string

const (
	ReleaseBasisGatePassed ReleaseBasis = "gatePassed"
	ReleaseBasisOverride   ReleaseBasis = "override"
)

func (e ReleaseBasis) IsValid() bool {
	return e == ReleaseBasisGatePassed || e == ReleaseBasisOverride
}

// OverrideType distinguishes the two manager escape hatches.
type OverrideType string

const (
	OverrideTypeQAGate               OverrideType = "qaOverride"
	OverrideTypeHoldbackForceRelease OverrideType = "holdbackForceRelease"
)

func (e OverrideType) IsValid() bool {
	return e == OverrideTypeQAGate || e == OverrideTypeHoldbackForceRelease
}

// QAStatus is the badge shown per job in the console list view.
// It is derived from the gate verdict, never stored.
type QAStatus string

const (
	QAStatusPassed  QAStatus = "passed"
	QAStatusPending QAStatus = "pending"
	QAStatusBlocked QAStatus = "blocked"
)

// QAEventType names the domain events written to the outbox.
type QAEventType string

const (
	QAEventJobCompleted          QAEventType = "qa.job.completed"
	QAEventGateOverridden        QAEventType = "qa.gate.overridden"
	QAEventHoldbackReleased      QAEventType = "qa.holdback.released"
	QAEventHoldbackForceReleased QAEventType = "qa.holdback.force_released"
)

// Outbox publish statuses for QAEventRecord.PublishStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

type UserRole string

const (
	UserRoleAdmin   UserRole = "A"
	UserRoleOwner   UserRole = "O"
	UserRoleManager UserRole = "M"
	UserRoleCrew    UserRole = "C"
)

func (e UserRole) IsValid() bool {
	switch e {
	case UserRoleAdmin, UserRoleOwner, UserRoleManager, UserRoleCrew:
		return true
	}
	return false
}

// PhotoTypeList stores a set of photo categories as a JSON column.
type PhotoTypeList []PhotoType

func (l PhotoTypeList) Value() (driver.Value, error) {
	if l == nil {
		l = PhotoTypeList{}
	}
	return json.Marshal(l)
}

func (l *PhotoTypeList) Scan(value interface{}) error {
	if value == nil {
		*l = PhotoTypeList{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported photo type list column value")
	}
	return json.Unmarshal(b, l)
}

// Contains reports whether pt is present in the list.
func (l PhotoTypeList) Contains(pt PhotoType) bool {
	for _, v := range l {
		if v == pt {
			return true
		}
	}
	return false
}
