package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/flux/internal/flux/analytics"
	"github.com/aussiebroadwan/flux/internal/flux/domain"
	"github.com/aussiebroadwan/flux/internal/flux/policy"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
}

func permissions(role domain.Role) string {
	allowed := policy.Allowed(role)
	names := make([]string, 0, len(allowed))
	for _, a := range allowed {
		names = append(names, string(a))
	}
	if len(names) == 0 {
		return "nothing"
	}
	return strings.Join(names, ", ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printOpportunityTable(w io.Writer, opps []domain.Opportunity) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tACCOUNT\tOPPORTUNITY\tREGION\tSTATUS\tVALUE\tSTART")
	for _, o := range opps {
		start := o.PresalesStartDate
		if start == "" {
			start = o.ExpectedPlannedStart
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID,
			o.AccountName,
			dash(o.Opportunity),
			dash(o.Region),
			dash(o.Status),
			analytics.FormatCurrency(o.DealValueUSD),
			dash(start),
		)
	}
	_ = tw.Flush()
}

func printOpportunity(w io.Writer, o domain.Opportunity) {
	tw := newTable(w)
	row := func(label, value string) { fmt.Fprintf(tw, "%s:\t%s\n", label, dash(value)) }

	row("ID", strconv.FormatInt(o.ID, 10))
	row("Account", o.AccountName)
	row("Opportunity", o.Opportunity)
	row("Region", strings.TrimSpace(o.Region+" "+o.SubRegion))
	row("Location", o.RegionLocation)
	row("Status", o.Status)
	row("Deal value", analytics.FormatCurrency(o.DealValueUSD))
	if o.PeriodOfPresalesWeeks > 0 {
		row("Presales period", fmt.Sprintf("%d weeks", o.PeriodOfPresalesWeeks))
	}
	row("Pursuit lead", o.PursuitLead)
	row("Delivery manager", o.DeliveryManager)
	row("GSD assignees", strings.Join(o.Assignees(), ", "))
	row("Presales start", o.PresalesStartDate)
	row("Planned start", o.ExpectedPlannedStart)
	row("SOW signature", o.SOWSignatureDate)
	row("Charging on vector", yesNo(o.ChargingOnVector))
	row("Staffing complete", yesNo(o.StaffingCompletedFlag))
	row("Staffing POC", o.StaffingPOC)
	row("Scoping doc", o.ScopingDoc)
	row("Vector link", o.VectorLink)
	row("Remarks", o.Remarks)
	_ = tw.Flush()
}

func printFieldErrors(w io.Writer, fields domain.FieldErrors) {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	slices.Sort(names)
	for _, f := range names {
		fmt.Fprintf(w, "  %s: %s\n", f, fields[f])
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func printUsers(w io.Writer, users []domain.User) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tROLE")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Email, dash(u.Name), u.Role.Label())
	}
	_ = tw.Flush()
}

func printSummary(w io.Writer, s analytics.Summary) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Opportunities:\t%d\n", s.Count)
	fmt.Fprintf(tw, "Pipeline value:\t%s\n", analytics.FormatCurrency(s.TotalValue))
	fmt.Fprintf(tw, "Average deal:\t%s\n", analytics.FormatCurrency(s.AverageValue))
	fmt.Fprintf(tw, "Active:\t%d (%d%%)\n", s.Active, s.ActivePercent)
	_ = tw.Flush()

	buckets := func(title string, bs []analytics.Bucket) {
		fmt.Fprintf(w, "\n%s\n", title)
		tw := newTable(w)
		for _, b := range bs {
			fmt.Fprintf(tw, "  %s\t%d\t%s\n", b.Name, b.Count, analytics.FormatCurrency(b.Value))
		}
		_ = tw.Flush()
	}
	buckets("By region", s.ByRegion)
	buckets("By status", s.ByStatus)

	if len(s.Monthly) == 0 {
		return
	}
	fmt.Fprintln(w, "\nMonthly trend")
	ref := s.Monthly[len(s.Monthly)-1].Month
	tw = newTable(w)
	for _, p := range s.Monthly {
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", p.Label(ref), p.Count, analytics.FormatCurrency(p.Value))
	}
	_ = tw.Flush()
	if s.Undated > 0 {
		fmt.Fprintf(w, "  (%d without a start date)\n", s.Undated)
	}
}

// readForm overlays the YAML or JSON document at path onto form. Keys absent
// from the document keep their current value. A path of "-" reads stdin.
func readForm(stdin io.Reader, path string, form *domain.OpportunityForm) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read opportunity file: %w", err)
	}

	if err := yaml.Unmarshal(data, form); err != nil {
		return fmt.Errorf("failed to parse opportunity file: %w", err)
	}
	return nil
}
