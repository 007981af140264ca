package domain

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FormInvalidMessage is shown above a form that failed validation.
const FormInvalidMessage = "Please fix the errors above before submitting"

// FieldErrors maps a form field to the message annotating it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, e[f]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// OpportunityForm holds the fields as a user typed them. Numbers and dates
// stay strings until Validate so that bad input can be reported per field.
type OpportunityForm struct {
	AccountName           string `yaml:"account_name"`
	Opportunity           string `yaml:"opportunity"`
	RegionLocation        string `yaml:"region_location"`
	Region                string `yaml:"region"`
	SubRegion             string `yaml:"sub_region"`
	DealValueUSD          string `yaml:"deal_value_usd"`
	ScopingDoc            string `yaml:"scoping_doc"`
	VectorLink            string `yaml:"vector_link"`
	ChargingOnVector      bool   `yaml:"charging_on_vector"`
	PeriodOfPresalesWeeks string `yaml:"period_of_presales_weeks"`
	Status                string `yaml:"status"`
	AssigneeFromGSD       string `yaml:"assignee_from_gsd"`
	PursuitLead           string `yaml:"pursuit_lead"`
	DeliveryManager       string `yaml:"delivery_manager"`
	PresalesStartDate     string `yaml:"presales_start_date"`
	ExpectedPlannedStart  string `yaml:"expected_planned_start"`
	SOWSignatureDate      string `yaml:"sow_signature_date"`
	StaffingCompletedFlag bool   `yaml:"staffing_completed_flag"`
	StaffingPOC           string `yaml:"staffing_poc"`
	Remarks               string `yaml:"remarks"`
}

// FormFromOpportunity prefills a form for editing.
func FormFromOpportunity(o Opportunity) OpportunityForm {
	f := OpportunityForm{
		AccountName:           o.AccountName,
		Opportunity:           o.Opportunity,
		RegionLocation:        o.RegionLocation,
		Region:                o.Region,
		SubRegion:             o.SubRegion,
		ScopingDoc:            o.ScopingDoc,
		VectorLink:            o.VectorLink,
		ChargingOnVector:      o.ChargingOnVector,
		Status:                o.Status,
		AssigneeFromGSD:       o.AssigneeFromGSD,
		PursuitLead:           o.PursuitLead,
		DeliveryManager:       o.DeliveryManager,
		PresalesStartDate:     o.PresalesStartDate,
		ExpectedPlannedStart:  o.ExpectedPlannedStart,
		SOWSignatureDate:      o.SOWSignatureDate,
		StaffingCompletedFlag: o.StaffingCompletedFlag,
		StaffingPOC:           o.StaffingPOC,
		Remarks:               o.Remarks,
	}
	if o.DealValueUSD != 0 {
		f.DealValueUSD = strconv.FormatFloat(o.DealValueUSD, 'f', -1, 64)
	}
	if o.PeriodOfPresalesWeeks != 0 {
		f.PeriodOfPresalesWeeks = strconv.Itoa(o.PeriodOfPresalesWeeks)
	}
	return f
}

// Validate checks every field and returns the cleaned input. When any field
// is invalid the input is the zero value and errs is non-nil.
func (f OpportunityForm) Validate() (OpportunityInput, FieldErrors) {
	errs := make(FieldErrors)

	if strings.TrimSpace(f.AccountName) == "" {
		errs["account_name"] = "Account name is required"
	}

	deal := validateDealValue(errs, strings.TrimSpace(f.DealValueUSD))
	weeks := validateWeeks(errs, strings.TrimSpace(f.PeriodOfPresalesWeeks))

	if link := strings.TrimSpace(f.VectorLink); link != "" && !isValidURL(link) {
		errs["vector_link"] = "Please enter a valid URL (e.g., https://example.com)"
	}

	dates := map[string]string{
		"presales_start_date":    f.PresalesStartDate,
		"expected_planned_start": f.ExpectedPlannedStart,
		"sow_signature_date":     f.SOWSignatureDate,
	}
	for field, v := range dates {
		if v = strings.TrimSpace(v); v != "" {
			if _, err := time.Parse(DateLayout, v); err != nil {
				errs[field] = "Please enter a valid date"
			}
		}
	}

	if len(errs) > 0 {
		return OpportunityInput{}, errs
	}

	return OpportunityInput{
		AccountName:           strings.TrimSpace(f.AccountName),
		Opportunity:           strings.TrimSpace(f.Opportunity),
		RegionLocation:        strings.TrimSpace(f.RegionLocation),
		Region:                strings.TrimSpace(f.Region),
		SubRegion:             strings.TrimSpace(f.SubRegion),
		DealValueUSD:          deal,
		ScopingDoc:            strings.TrimSpace(f.ScopingDoc),
		VectorLink:            strings.TrimSpace(f.VectorLink),
		ChargingOnVector:      f.ChargingOnVector,
		PeriodOfPresalesWeeks: weeks,
		Status:                strings.TrimSpace(f.Status),
		AssigneeFromGSD:       strings.TrimSpace(f.AssigneeFromGSD),
		PursuitLead:           strings.TrimSpace(f.PursuitLead),
		DeliveryManager:       strings.TrimSpace(f.DeliveryManager),
		PresalesStartDate:     strings.TrimSpace(f.PresalesStartDate),
		ExpectedPlannedStart:  strings.TrimSpace(f.ExpectedPlannedStart),
		SOWSignatureDate:      strings.TrimSpace(f.SOWSignatureDate),
		StaffingCompletedFlag: f.StaffingCompletedFlag,
		StaffingPOC:           strings.TrimSpace(f.StaffingPOC),
		Remarks:               strings.TrimSpace(f.Remarks),
	}, nil
}

func validateDealValue(errs FieldErrors, v string) float64 {
	if v == "" {
		return 0
	}

	n, err := strconv.ParseFloat(v, 64)
	switch {
	case err != nil || math.IsNaN(n) || math.IsInf(n, 0):
		errs["deal_value_usd"] = "Please enter a valid number (e.g., 50000)"
	case n < 0:
		errs["deal_value_usd"] = "Deal value cannot be negative"
	}
	return n
}

func validateWeeks(errs FieldErrors, v string) int {
	if v == "" {
		return 0
	}

	n, err := strconv.ParseFloat(v, 64)
	switch {
	case err != nil || math.IsNaN(n) || math.IsInf(n, 0):
		errs["period_of_presales_weeks"] = "Please enter a valid number (e.g., 4)"
	case n < 0:
		errs["period_of_presales_weeks"] = "Weeks cannot be negative"
	case n != math.Trunc(n):
		errs["period_of_presales_weeks"] = "Please enter a whole number"
	case n > math.MaxInt32:
		errs["period_of_presales_weeks"] = "Weeks is too large"
	default:
		return int(n)
	}
	return 0
}

func isValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	// mailto: and friends carry an opaque part instead of a host.
	return u.Host != "" || u.Opaque != ""
}
