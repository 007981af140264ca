package service

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
)

// Table paging defaults.
const DefaultPerPage = 10

var PerPageOptions = []int{5, 10, 25, 50}

// Filter narrows the opportunity table. Empty fields match everything.
type Filter struct {
	Search string
	Status string
	Region string
}

// Match reports whether o passes the filter. Search is a case-insensitive
// substring match over every field; status and region match exactly.
func (f Filter) Match(o domain.Opportunity) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.Region != "" && o.Region != f.Region {
		return false
	}

	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	for _, v := range searchable(o) {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func searchable(o domain.Opportunity) []string {
	return []string{
		strconv.FormatInt(o.ID, 10),
		o.AccountName,
		o.Opportunity,
		o.RegionLocation,
		o.Region,
		o.SubRegion,
		strconv.FormatFloat(o.DealValueUSD, 'f', -1, 64),
		o.ScopingDoc,
		o.VectorLink,
		strconv.FormatBool(o.ChargingOnVector),
		strconv.Itoa(o.PeriodOfPresalesWeeks),
		o.Status,
		o.AssigneeFromGSD,
		o.PursuitLead,
		o.DeliveryManager,
		o.PresalesStartDate,
		o.ExpectedPlannedStart,
		o.SOWSignatureDate,
		strconv.FormatBool(o.StaffingCompletedFlag),
		o.StaffingPOC,
		o.Remarks,
	}
}

// FilterOpportunities returns the opportunities matching f, in order.
func FilterOpportunities(opps []domain.Opportunity, f Filter) []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	return out
}

// SortField names a sortable table column by its wire name.
type SortField string

var sorters = map[SortField]func(a, b domain.Opportunity) int{
	"id":           func(a, b domain.Opportunity) int { return cmp.Compare(a.ID, b.ID) },
	"account_name": byString(func(o domain.Opportunity) string { return o.AccountName }),
	"opportunity":  byString(func(o domain.Opportunity) string { return o.Opportunity }),
	"region":       byString(func(o domain.Opportunity) string { return o.Region }),
	"sub_region":   byString(func(o domain.Opportunity) string { return o.SubRegion }),
	"status":       byString(func(o domain.Opportunity) string { return o.Status }),
	"deal_value_usd": func(a, b domain.Opportunity) int {
		return cmp.Compare(a.DealValueUSD, b.DealValueUSD)
	},
	"period_of_presales_weeks": func(a, b domain.Opportunity) int {
		return cmp.Compare(a.PeriodOfPresalesWeeks, b.PeriodOfPresalesWeeks)
	},
	"pursuit_lead":           byString(func(o domain.Opportunity) string { return o.PursuitLead }),
	// Dates share DateLayout so lexical order is chronological.
	"presales_start_date":    byString(func(o domain.Opportunity) string { return o.PresalesStartDate }),
	"expected_planned_start": byString(func(o domain.Opportunity) string { return o.ExpectedPlannedStart }),
	"sow_signature_date":     byString(func(o domain.Opportunity) string { return o.SOWSignatureDate }),
}

func byString(get func(domain.Opportunity) string) func(a, b domain.Opportunity) int {
	return func(a, b domain.Opportunity) int {
		return cmp.Compare(strings.ToLower(get(a)), strings.ToLower(get(b)))
	}
}

// SortFields lists the sortable columns.
func SortFields() []SortField {
	out := make([]SortField, 0, len(sorters))
	for f := range sorters {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// Sort returns a sorted copy of opps. Ties keep their original order.
func Sort(opps []domain.Opportunity, field SortField, desc bool) ([]domain.Opportunity, error) {
	less, ok := sorters[field]
	if !ok {
		return nil, fmt.Errorf("unknown sort field %q", field)
	}

	out := slices.Clone(opps)
	slices.SortStableFunc(out, func(a, b domain.Opportunity) int {
		if desc {
			return less(b, a)
		}
		return less(a, b)
	})
	return out, nil
}

// Page is one page of the table.
type Page struct {
	Items   []domain.Opportunity
	Page    int // zero-based
	PerPage int
	Total   int
	Pages   int
}

// From and To are the one-based row range shown, e.g. "11-20 of 42".
func (p Page) From() int {
	if len(p.Items) == 0 {
		return 0
	}
	return p.Page*p.PerPage + 1
}

func (p Page) To() int {
	return p.Page*p.PerPage + len(p.Items)
}

// Paginate slices opps into page (zero-based) of perPage rows. A page past
// the end is clamped to the last page; perPage <= 0 means DefaultPerPage.
func Paginate(opps []domain.Opportunity, page, perPage int) Page {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	total := len(opps)
	pages := (total + perPage - 1) / perPage
	page = max(0, min(page, pages-1))

	start := min(page*perPage, total)
	end := min(start+perPage, total)

	return Page{
		Items:   slices.Clone(opps[start:end]),
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   pages,
	}
}

// DistinctStatuses lists the non-empty statuses in first-seen order.
func DistinctStatuses(opps []domain.Opportunity) []string {
	return distinct(opps, func(o domain.Opportunity) string { return o.Status })
}

// DistinctRegions lists the non-empty regions in first-seen order.
func DistinctRegions(opps []domain.Opportunity) []string {
	return distinct(opps, func(o domain.Opportunity) string { return o.Region })
}

func distinct(opps []domain.Opportunity, get func(domain.Opportunity) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range opps {
		v := get(o)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Table is the full view state of the opportunity table.
type Table struct {
	Filter  Filter
	SortBy  SortField // empty keeps API order
	Desc    bool
	Page    int
	PerPage int
}

// Apply filters, sorts and pages opps.
func (t Table) Apply(opps []domain.Opportunity) (Page, error) {
	rows := FilterOpportunities(opps, t.Filter)
	if t.SortBy != "" {
		sorted, err := Sort(rows, t.SortBy, t.Desc)
		if err != nil {
			return Page{}, err
		}
		rows = sorted
	}
	return Paginate(rows, t.Page, t.PerPage), nil
}
