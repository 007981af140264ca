package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/flux/internal/flux/domain"
)

var sample = []domain.Opportunity{
	{ID: 1, Region: "EMEA", Status: domain.StatusInProgress, DealValueUSD: 100_000, PresalesStartDate: "2026-01-15"},
	{ID: 2, Region: "EMEA", Status: domain.StatusWon, DealValueUSD: 300_000, ExpectedPlannedStart: "2026-03-01"},
	{ID: 3, Region: "JAPAC", Status: domain.StatusSentForSignature, DealValueUSD: 200_000, PresalesStartDate: "2026-01-02"},
	{ID: 4, Status: "", DealValueUSD: 0},
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s := Summarize(sample, Filter{})

	require.Equal(t, 4, s.Count)
	require.Equal(t, 600_000.0, s.TotalValue)
	require.Equal(t, 150_000.0, s.AverageValue)
	require.Equal(t, 2, s.Active)
	require.Equal(t, 50, s.ActivePercent)
	require.Equal(t, 1, s.Undated)

	require.Equal(t, []Bucket{
		{Name: "EMEA", Count: 2, Value: 400_000},
		{Name: "JAPAC", Count: 1, Value: 200_000},
		{Name: "Unknown", Count: 1, Value: 0},
	}, s.ByRegion)
	require.Equal(t, "Unknown", s.ByStatus[len(s.ByStatus)-1].Name)

	require.Equal(t, []MonthPoint{
		{Month: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Count: 2, Value: 300_000},
		{Month: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Count: 1, Value: 300_000},
	}, s.Monthly)

	require.Equal(t, []string{domain.StatusInProgress, domain.StatusWon, domain.StatusSentForSignature}, s.Statuses)
	require.Equal(t, []string{"EMEA", "JAPAC"}, s.Regions)
}

func TestSummarizeFilter(t *testing.T) {
	t.Parallel()

	s := Summarize(sample, Filter{Region: "EMEA", Status: domain.StatusWon})
	require.Equal(t, 1, s.Count)
	require.Zero(t, s.Active)
	require.Zero(t, s.ActivePercent)
	require.Len(t, s.Regions, 2, "filter choices ignore the filter")

	empty := Summarize(sample, Filter{Region: "NORTHAM"})
	require.Zero(t, empty.Count)
	require.Zero(t, empty.AverageValue)
	require.Empty(t, empty.Monthly)
}

func TestTrendKeepsLatestMonthsInOrder(t *testing.T) {
	t.Parallel()

	var opps []domain.Opportunity
	for m := 12; m >= 1; m-- {
		opps = append(opps, domain.Opportunity{PresalesStartDate: fmt.Sprintf("2025-%02d-10", m)})
	}

	s := Summarize(opps, Filter{})
	require.Len(t, s.Monthly, MaxTrendMonths)
	require.Equal(t, time.June, s.Monthly[0].Month.Month())
	require.Equal(t, time.December, s.Monthly[MaxTrendMonths-1].Month.Month())
	require.Equal(t, "Jun", s.Monthly[0].Label(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "Jun 2025", s.Monthly[0].Label(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFormatCurrency(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{
		0:         "$0",
		900:       "$900",
		999.5:     "$999.5",
		1_000:     "$1K",
		50_000:    "$50K",
		1_200_000: "$1.2M",
		2_500_000: "$2.5M",
	}
	for in, want := range cases {
		require.Equal(t, want, FormatCurrency(in), "%v", in)
	}
}
