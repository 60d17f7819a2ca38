package model

import "time"

// DowntimeCategory classifies a breakdown.
type DowntimeCategory string

const (
	CategoryScheduled   DowntimeCategory = "SCM"
	CategoryUnscheduled DowntimeCategory = "USM"
)

// BreakdownLog is one downtime interval for a unit. A nil End means the unit
// is still down (no Ready-For-Use recorded yet).
type BreakdownLog struct {
	ID          int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UnitID      int64            `gorm:"not null;index" json:"unit_id"`
	ComponentID *int64           `json:"component_id,omitempty"`
	Start       time.Time        `gorm:"column:start_at;not null;index" json:"start"`
	End         *time.Time       `gorm:"column:end_at" json:"end,omitempty"`
	Description string           `gorm:"size:1024;not null" json:"description"`
	Category    DowntimeCategory `gorm:"size:3;not null" json:"category"`
	Synced      bool             `gorm:"not null;default:false" json:"synced"`
	CreatedAt   time.Time        `gorm:"not null" json:"created_at"`
}

func (BreakdownLog) TableName() string      { return string(CollectionBreakdownLogs) }
func (BreakdownLog) Collection() Collection { return CollectionBreakdownLogs }
func (b BreakdownLog) PrimaryKey() int64    { return b.ID }

// Open reports whether the breakdown has no RFU timestamp yet.
func (b BreakdownLog) Open() bool { return b.End == nil }
