package availability

import (
	"errors"
	"time"

	"fms-backend/internal/model"
)

// ErrInvalidWindow is returned for a look-back window of zero or fewer days.
var ErrInvalidWindow = errors.New("window must be at least one day")

// UnknownSystem labels downtime whose component no longer resolves.
const UnknownSystem = "UNKNOWN"

// Scope selects which readings and downtime feed the figures.
type Scope string

const (
	// ScopeWindow counts only HM readings dated inside the window.
	// Breakdowns count in full unless Options.ClipDowntime is set.
	ScopeWindow Scope = "window"
	// ScopeHistory uses every reading and the full length of every
	// breakdown, whatever the window.
	ScopeHistory Scope = "history"
)

// Options tunes a Calculator.
type Options struct {
	Scope        Scope
	TargetMA     float64
	ExcludeSpare bool
	// ClipDowntime limits breakdown intervals to [now-D, now] in window
	// scope. Off, every breakdown of the unit counts in full.
	ClipDowntime bool
	// Location decides which calendar day an HM reading's date falls on.
	Location *time.Location
}

// Snapshot is the store contents a report is derived from.
type Snapshot struct {
	Units         []model.Unit
	Components    []model.Component
	HMLogs        []model.HMLog
	BreakdownLogs []model.BreakdownLog
}

// UnitAvailability holds one unit's figures.
type UnitAvailability struct {
	UnitID             int64                              `json:"unit_id"`
	Code               string                             `json:"code"`
	Class              string                             `json:"class"`
	Spare              bool                               `json:"spare"`
	WorkingHours       float64                            `json:"working_hours"`
	BreakdownHours     float64                            `json:"breakdown_hours"`
	MA                 float64                            `json:"ma"`
	PA                 float64                            `json:"pa"`
	BelowTarget        bool                               `json:"below_target"`
	OpenBreakdowns     int                                `json:"open_breakdowns"`
	DowntimeByCategory map[model.DowntimeCategory]float64 `json:"downtime_by_category"`
	DowntimeBySystem   map[string]float64                 `json:"downtime_by_system"`
}

// Fleet is the mean of the per-unit figures, rounded for display.
type Fleet struct {
	MA    int `json:"ma"`
	PA    int `json:"pa"`
	Units int `json:"units"`
}

// Report is the result of one derivation.
type Report struct {
	WindowDays  int                `json:"window_days"`
	Scope       Scope              `json:"scope"`
	TargetMA    float64            `json:"target_ma"`
	GeneratedAt time.Time          `json:"generated_at"`
	Fleet       Fleet              `json:"fleet"`
	Units       []UnitAvailability `json:"units"`
}

// Calculator derives MA/PA reports. It holds no state besides its options.
type Calculator struct {
	opts Options
}

// New creates a Calculator.
func New(opts Options) *Calculator {
	if opts.Scope == "" {
		opts.Scope = ScopeWindow
	}
	if opts.TargetMA <= 0 {
		opts.TargetMA = 85
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Calculator{opts: opts}
}

// Compute derives per-unit and fleet figures over the last windowDays days
// as seen at now.
func (c *Calculator) Compute(snap Snapshot, windowDays int, now time.Time) (Report, error) {
	if windowDays <= 0 {
		return Report{}, ErrInvalidWindow
	}

	report := Report{
		WindowDays:  windowDays,
		Scope:       c.opts.Scope,
		TargetMA:    c.opts.TargetMA,
		GeneratedAt: now,
		Units:       []UnitAvailability{},
	}

	w := c.window(windowDays, now)

	systems := make(map[int64]string, len(snap.Components))
	for _, comp := range snap.Components {
		systems[comp.ID] = comp.System
	}

	readings := make(map[int64][]float64)
	for _, l := range snap.HMLogs {
		if w.containsDate(l.Date) {
			readings[l.UnitID] = append(readings[l.UnitID], l.HMValue)
		}
	}

	breakdowns := make(map[int64][]model.BreakdownLog)
	for _, b := range snap.BreakdownLogs {
		breakdowns[b.UnitID] = append(breakdowns[b.UnitID], b)
	}

	var mas, pas []float64
	for _, u := range snap.Units {
		if c.opts.ExcludeSpare && u.Spare {
			continue
		}

		ua := UnitAvailability{
			UnitID:             u.ID,
			Code:               u.Code,
			Class:              u.Class,
			Spare:              u.Spare,
			DowntimeByCategory: map[model.DowntimeCategory]float64{},
			DowntimeBySystem:   map[string]float64{},
		}

		wh := WorkingHours(readings[u.ID])
		var bd float64
		for _, b := range breakdowns[u.ID] {
			hours := w.downtime(b, now)
			bd += hours
			if b.Open() {
				ua.OpenBreakdowns++
			}
			if hours == 0 {
				continue
			}
			ua.DowntimeByCategory[b.Category] += hours
			ua.DowntimeBySystem[systemOf(b, systems)] += hours
		}

		ua.WorkingHours = Round1(wh)
		ua.BreakdownHours = Round1(bd)
		ua.MA = MechanicalAvailability(wh, bd)
		ua.PA = PhysicalAvailability(bd, windowDays)
		ua.BelowTarget = ua.MA < c.opts.TargetMA
		for k, v := range ua.DowntimeByCategory {
			ua.DowntimeByCategory[k] = Round1(v)
		}
		for k, v := range ua.DowntimeBySystem {
			ua.DowntimeBySystem[k] = Round1(v)
		}

		report.Units = append(report.Units, ua)
		mas = append(mas, ua.MA)
		pas = append(pas, ua.PA)
	}

	report.Fleet = Fleet{MA: mean(mas), PA: mean(pas), Units: len(report.Units)}
	return report, nil
}

func systemOf(b model.BreakdownLog, systems map[int64]string) string {
	if b.ComponentID == nil {
		return UnknownSystem
	}
	if s, ok := systems[*b.ComponentID]; ok && s != "" {
		return s
	}
	return UnknownSystem
}

// window bounds the data a report looks at. A zero window is unbounded.
type window struct {
	bounded           bool
	clip              bool
	from, to          time.Time
	firstDay, lastDay string
}

func (c *Calculator) window(days int, now time.Time) window {
	if c.opts.Scope == ScopeHistory {
		return window{}
	}
	local := now.In(c.opts.Location)
	return window{
		bounded:  true,
		clip:     c.opts.ClipDowntime,
		from:     now.Add(-time.Duration(days) * 24 * time.Hour),
		to:       now,
		firstDay: local.AddDate(0, 0, -(days - 1)).Format(model.DateLayout),
		lastDay:  local.Format(model.DateLayout),
	}
}

// containsDate reports whether an HM date falls on one of the window's
// calendar days.
func (w window) containsDate(date string) bool {
	if !w.bounded {
		return true
	}
	return date >= w.firstDay && date <= w.lastDay
}

func (w window) downtime(b model.BreakdownLog, now time.Time) float64 {
	if !w.clip {
		return DowntimeHours(b, now)
	}

	start, end := b.Start, now
	if b.End != nil {
		end = *b.End
	}
	if start.Before(w.from) {
		start = w.from
	}
	if end.After(w.to) {
		end = w.to
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}
