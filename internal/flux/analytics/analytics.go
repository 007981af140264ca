// Package analytics derives the dashboard summary from a list of
// opportunities. It never mutates anything.
package analytics

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
)

// MaxTrendMonths bounds the monthly trend.
const MaxTrendMonths = 7

const unknown = "Unknown"

// closed statuses do not count as active.
var closed = map[string]bool{
	domain.StatusLost:        true,
	domain.StatusWon:         true,
	domain.StatusNotRequired: true,
	domain.StatusNotAssigned: true,
	"":                       true,
}

// Filter narrows the summary. Empty fields match everything.
type Filter struct {
	Status string
	Region string
}

func (f Filter) match(o domain.Opportunity) bool {
	return (f.Status == "" || o.Status == f.Status) && (f.Region == "" || o.Region == f.Region)
}

// Bucket aggregates the opportunities sharing one value.
type Bucket struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// MonthPoint is one month of the trend.
type MonthPoint struct {
	Month time.Time `json:"month"`
	Count int       `json:"count"`
	Value float64   `json:"value"`
}

// Label is the short month name, with the year when it differs from ref.
func (p MonthPoint) Label(ref time.Time) string {
	if p.Month.Year() == ref.Year() {
		return p.Month.Format("Jan")
	}
	return p.Month.Format("Jan 2006")
}

// Summary is everything the analytics view shows.
type Summary struct {
	Count        int     `json:"count"`
	TotalValue   float64 `json:"total_value"`
	AverageValue float64 `json:"average_value"`
	Active       int     `json:"active"`

	// ActivePercent is the rounded share of Active in Count.
	ActivePercent int `json:"active_percent"`

	ByRegion []Bucket     `json:"by_region"`
	ByStatus []Bucket     `json:"by_status"`
	Monthly  []MonthPoint `json:"monthly"`

	// Undated counts opportunities left off the trend.
	Undated int `json:"undated"`

	// Statuses and Regions are the filter choices, taken from the unfiltered
	// list.
	Statuses []string `json:"statuses"`
	Regions  []string `json:"regions"`
}

// IsActive reports whether an opportunity is still being worked.
func IsActive(o domain.Opportunity) bool {
	return !closed[o.Status]
}

// Summarize aggregates the opportunities passing f.
func Summarize(opps []domain.Opportunity, f Filter) Summary {
	s := Summary{
		Statuses: distinct(opps, func(o domain.Opportunity) string { return o.Status }),
		Regions:  distinct(opps, func(o domain.Opportunity) string { return o.Region }),
	}

	regions := newBuckets()
	statuses := newBuckets()
	months := make(map[time.Time]*MonthPoint)

	for _, o := range opps {
		if !f.match(o) {
			continue
		}

		s.Count++
		s.TotalValue += o.DealValueUSD
		if IsActive(o) {
			s.Active++
		}

		regions.add(o.Region, o.DealValueUSD)
		statuses.add(o.Status, o.DealValueUSD)

		start, ok := o.StartDate()
		if !ok {
			s.Undated++
			continue
		}
		key := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
		p, ok := months[key]
		if !ok {
			p = &MonthPoint{Month: key}
			months[key] = p
		}
		p.Count++
		p.Value += o.DealValueUSD
	}

	if s.Count > 0 {
		s.AverageValue = s.TotalValue / float64(s.Count)
		s.ActivePercent = int(math.Round(float64(s.Active) / float64(s.Count) * 100))
	}

	s.ByRegion = regions.list()
	s.ByStatus = statuses.list()
	s.Monthly = trend(months)
	return s
}

// trend keeps the most recent MaxTrendMonths months, oldest first.
func trend(months map[time.Time]*MonthPoint) []MonthPoint {
	out := make([]MonthPoint, 0, len(months))
	for _, p := range months {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b MonthPoint) int { return a.Month.Compare(b.Month) })
	if len(out) > MaxTrendMonths {
		out = out[len(out)-MaxTrendMonths:]
	}
	return out
}

type buckets struct {
	order []string
	by    map[string]*Bucket
}

func newBuckets() *buckets {
	return &buckets{by: make(map[string]*Bucket)}
}

func (b *buckets) add(name string, value float64) {
	if name == "" {
		name = unknown
	}
	bk, ok := b.by[name]
	if !ok {
		bk = &Bucket{Name: name}
		b.by[name] = bk
		b.order = append(b.order, name)
	}
	bk.Count++
	bk.Value += value
}

// list returns buckets in first-seen order.
func (b *buckets) list() []Bucket {
	out := make([]Bucket, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, *b.by[name])
	}
	return out
}

func distinct(opps []domain.Opportunity, get func(domain.Opportunity) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range opps {
		if v := get(o); v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// FormatCurrency renders a dollar amount the way the dashboard cards do:
// $1.2M, $50K or $900.
func FormatCurrency(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.0fK", v/1_000)
	default:
		return "$" + strconv.FormatFloat(v, 'f', -1, 64)
	}
}
