package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
)

var tableRows = []domain.Opportunity{
	{ID: 1, AccountName: "Acme", Region: "EMEA", Status: domain.StatusInProgress, DealValueUSD: 50000, PursuitLead: "Zoe"},
	{ID: 2, AccountName: "Globex", Region: "JAPAC", Status: domain.StatusWon, DealValueUSD: 1200000, Remarks: "renewal"},
	{ID: 3, AccountName: "initech", Region: "EMEA", Status: domain.StatusLost, DealValueUSD: 900},
	{ID: 4, AccountName: "Umbrella", Status: "", DealValueUSD: 1500.5},
}

func ids(opps []domain.Opportunity) []int64 {
	out := make([]int64, 0, len(opps))
	for _, o := range opps {
		out = append(out, o.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		filter Filter
		want   []int64
	}{
		{"empty", Filter{}, []int64{1, 2, 3, 4}},
		{"search is case insensitive", Filter{Search: "ACME"}, []int64{1}},
		{"search covers every field", Filter{Search: "renewal"}, []int64{2}},
		{"search covers numbers", Filter{Search: "1500.5"}, []int64{4}},
		{"status exact", Filter{Status: domain.StatusWon}, []int64{2}},
		{"status is not a substring match", Filter{Status: "Won "}, []int64{}},
		{"region", Filter{Region: "EMEA"}, []int64{1, 3}},
		{"combined", Filter{Region: "EMEA", Search: "init"}, []int64{3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ids(FilterOpportunities(tableRows, tc.filter)))
		})
	}
}

func TestSort(t *testing.T) {
	t.Parallel()

	got, err := Sort(tableRows, "deal_value_usd", true)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1, 4, 3}, ids(got))

	got, err = Sort(tableRows, "account_name", false)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4}, ids(got), "case-insensitive")

	got, err = Sort(tableRows, "region", false)
	require.NoError(t, err)
	require.Equal(t, []int64{4, 1, 3, 2}, ids(got), "stable on ties")

	_, err = Sort(tableRows, "colour", false)
	require.Error(t, err)

	require.Equal(t, []int64{1, 2, 3, 4}, ids(tableRows), "input untouched")
}

func TestPaginate(t *testing.T) {
	t.Parallel()

	rows := make([]domain.Opportunity, 23)
	for i := range rows {
		rows[i].ID = int64(i + 1)
	}

	p := Paginate(rows, 0, 0)
	require.Equal(t, DefaultPerPage, p.PerPage)
	require.Equal(t, 3, p.Pages)
	require.Equal(t, 1, p.From())
	require.Equal(t, 10, p.To())

	p = Paginate(rows, 2, 10)
	require.Len(t, p.Items, 3)
	require.Equal(t, 21, p.From())
	require.Equal(t, 23, p.To())

	p = Paginate(rows, 9, 10)
	require.Equal(t, 2, p.Page, "clamped to the last page")

	p = Paginate(nil, 3, 5)
	require.Zero(t, p.Pages)
	require.Zero(t, p.From())
	require.Empty(t, p.Items)
}

func TestDistinctValues(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{domain.StatusInProgress, domain.StatusWon, domain.StatusLost}, DistinctStatuses(tableRows))
	require.Equal(t, []string{"EMEA", "JAPAC"}, DistinctRegions(tableRows))
}

func TestTableApply(t *testing.T) {
	t.Parallel()

	page, err := Table{
		Filter:  Filter{Region: "EMEA"},
		SortBy:  "deal_value_usd",
		PerPage: 1,
	}.Apply(tableRows)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, ids(page.Items))
	require.Equal(t, 2, page.Total)
}
