package availability

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fms-backend/internal/model"
)

var hundred = decimal.NewFromInt(100)

// WorkingHours is the spread between the lowest and highest cumulative
// reading, or 0 with fewer than two readings.
func WorkingHours(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[len(sorted)-1] - sorted[0]
}

// DowntimeHours is the length of b in hours. An open breakdown runs until
// now; one that has not started yet contributes nothing.
func DowntimeHours(b model.BreakdownLog, now time.Time) float64 {
	end := now
	if b.End != nil {
		end = *b.End
	}
	if !end.After(b.Start) {
		return 0
	}
	return end.Sub(b.Start).Hours()
}

// MechanicalAvailability is 100·WH/(WH+BD) rounded to one decimal and capped
// at 100. With no work and no downtime the unit is fully available.
func MechanicalAvailability(wh, bd float64) float64 {
	total := wh + bd
	if total == 0 {
		return 100
	}
	ma := decimal.NewFromFloat(wh).Mul(hundred).Div(decimal.NewFromFloat(total)).Round(1)
	if ma.GreaterThan(hundred) {
		return 100
	}
	return ma.InexactFloat64()
}

// PhysicalAvailability is 100·(24D−BD)/24D rounded to one decimal. It is not
// clamped and goes negative once downtime exceeds the window.
func PhysicalAvailability(bd float64, days int) float64 {
	period := decimal.NewFromInt(int64(days) * 24)
	return period.Sub(decimal.NewFromFloat(bd)).Mul(hundred).Div(period).Round(1).InexactFloat64()
}

// Round1 rounds half away from zero to one decimal place.
func Round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

func mean(values []float64) int {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	return int(sum.Div(decimal.NewFromInt(int64(len(values)))).Round(0).IntPart())
}
