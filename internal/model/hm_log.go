package model

import "time"

// Shift is the half of the day a reading belongs to.
type Shift string

const (
	ShiftDay   Shift = "Day"
	ShiftNight Shift = "Night"
)

// DateLayout is the calendar-day format of HMLog.Date.
const DateLayout = "2006-01-02"

// HMLog is one cumulative hour-meter reading for a unit on a date/shift.
// The (unit_id, date, shift) index is intentionally not unique; duplicate
// handling is a write-side policy.
type HMLog struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UnitID    int64     `gorm:"not null;index;index:idx_hm_logs_unit_date_shift,priority:1" json:"unit_id"`
	Date      string    `gorm:"size:10;not null;index;index:idx_hm_logs_unit_date_shift,priority:2" json:"date"`
	Shift     Shift     `gorm:"size:8;not null;index;index:idx_hm_logs_unit_date_shift,priority:3" json:"shift"`
	HMValue   float64   `gorm:"column:hm_value;not null" json:"hm_value"`
	Synced    bool      `gorm:"not null;default:false" json:"synced"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (HMLog) TableName() string      { return string(CollectionHMLogs) }
func (HMLog) Collection() Collection { return CollectionHMLogs }
func (l HMLog) PrimaryKey() int64    { return l.ID }
