package validation

import (
	"time"

	"fms-backend/internal/model"
)

// UnitForm is the payload for creating or editing a unit.
type UnitForm struct {
	Code  string `json:"code" validate:"required,max=32"`
	Model string `json:"model" validate:"required"`
	Class string `json:"class" validate:"required"`
	EGI   string `json:"egi"`
	Spare bool   `json:"spare"`
}

// HMEntryForm is one hour-meter reading. Date and Shift default to today's
// day shift.
type HMEntryForm struct {
	UnitID  int64       `json:"unit_id" validate:"required,gt=0"`
	Date    string      `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Shift   model.Shift `json:"shift" validate:"omitempty,oneof=Day Night"`
	HMValue *float64    `json:"hm_value" validate:"required,gte=0"`
}

// BreakdownForm reports a downtime event. Start defaults to now and Category
// to SCM; a nil End leaves the breakdown open.
type BreakdownForm struct {
	UnitID      int64                  `json:"unit_id" validate:"required,gt=0"`
	ComponentID *int64                 `json:"component_id" validate:"required"`
	Start       time.Time              `json:"start"`
	End         *time.Time             `json:"end"`
	Description string                 `json:"description" validate:"required"`
	Category    model.DowntimeCategory `json:"category" validate:"omitempty,oneof=SCM USM"`
}

func (f *HMEntryForm) applyDefaults(now time.Time) {
	if f.Date == "" {
		f.Date = now.Format(model.DateLayout)
	}
	if f.Shift == "" {
		f.Shift = model.ShiftDay
	}
}

func (f *BreakdownForm) applyDefaults(now time.Time) {
	if f.Start.IsZero() {
		f.Start = now
	}
	if f.Category == "" {
		f.Category = model.CategoryScheduled
	}
}
