// Package kpi derives per-lead and aggregate call-center indicators from lead
// aggregates. It performs no I/O.
package kpi

import (
	"math"
	"slices"
	"time"

	"github.com/kursadbilgin/relance-engine/internal/domain"
	"github.com/kursadbilgin/relance-engine/internal/temporal"
)

// ReactivityTargetMinutes is the service-level threshold reported by the dashboard.
const ReactivityTargetMinutes = 45

// LeadSummary is a lead with its aggregates and reactivity.
type LeadSummary struct {
	domain.LeadStats
	// ReactivityMinutes is nil when the lead was created outside business hours
	// or has not been called yet.
	ReactivityMinutes *int64
	ReactivityInScope int
}

// Summarize computes the reactivity of one lead. Business hours are evaluated in loc.
func Summarize(stats domain.LeadStats, loc *time.Location) LeadSummary {
	summary := LeadSummary{LeadStats: stats}
	if stats.FirstCallAt == nil {
		return summary
	}
	if !temporal.InBusinessHours(stats.LeadCreatedAt, loc) {
		return summary
	}

	minutes := temporal.ReactivityMinutes(stats.LeadCreatedAt, *stats.FirstCallAt)
	summary.ReactivityMinutes = &minutes
	summary.ReactivityInScope = 1
	return summary
}

func SummarizeAll(stats []domain.LeadStats, loc *time.Location) []LeadSummary {
	out := make([]LeadSummary, 0, len(stats))
	for _, s := range stats {
		out = append(out, Summarize(s, loc))
	}
	return out
}

// Dashboard aggregates a filtered set of leads.
type Dashboard struct {
	LeadsTotal           int
	CallsTotal           int
	Combativity          float64
	ReactivityMeasured   int
	ReactivityMean       *float64
	ReactivityMedian     *float64
	ReactivityPctUnder45 float64
	// NegativeReactivity counts measured leads whose first call predates their
	// creation, which points at clock or import problems upstream.
	NegativeReactivity int
}

func BuildDashboard(leads []LeadSummary) Dashboard {
	d := Dashboard{LeadsTotal: len(leads)}

	reactivities := make([]int64, 0, len(leads))
	for _, l := range leads {
		d.CallsTotal += l.CallCount
		if l.ReactivityMinutes != nil {
			reactivities = append(reactivities, *l.ReactivityMinutes)
		}
	}

	if d.LeadsTotal > 0 {
		d.Combativity = round(float64(d.CallsTotal)/float64(d.LeadsTotal), 2)
	}

	d.ReactivityMeasured = len(reactivities)
	if len(reactivities) == 0 {
		return d
	}

	var sum int64
	var underTarget int
	for _, r := range reactivities {
		sum += r
		if r <= ReactivityTargetMinutes {
			underTarget++
		}
		if r < 0 {
			d.NegativeReactivity++
		}
	}

	mean := round(float64(sum)/float64(len(reactivities)), 1)
	median := round(medianOf(reactivities), 1)
	d.ReactivityMean = &mean
	d.ReactivityMedian = &median
	d.ReactivityPctUnder45 = round(float64(underTarget)*100/float64(len(reactivities)), 1)

	return d
}

func medianOf(values []int64) float64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

// round rounds half to even at the given number of decimals.
func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.RoundToEven(v*p) / p
}
