package domain

import (
	"strings"
	"time"
)

// Opportunity statuses.
const (
	StatusNotAssigned         = "Not Assigned"
	StatusInProgress          = "In Progress"
	StatusSentForSignature    = "Sent for Signature"
	StatusLost                = "Lost"
	StatusWon                 = "Won"
	StatusNotRequired         = "Not Required"
	StatusProposalUnderReview = "Proposal Under Review"
	StatusStaffingInProgress  = "Staffing in Progress"
)

var Statuses = []string{
	StatusNotAssigned,
	StatusInProgress,
	StatusSentForSignature,
	StatusLost,
	StatusWon,
	StatusNotRequired,
	StatusProposalUnderReview,
	StatusStaffingInProgress,
}

// Charging-on-vector states.
var ChargingStates = []string{"Not Yet", "Allocated", "In Progress", "Not Allocated"}

var Regions = []string{"NORTHAM", "EMEA", "JAPAC"}

var SubRegions = []string{"SEA", "US FS", "US SOUTH", "Canada", "India", "US North", "Japan"}

// DateLayout is the wire format of every opportunity date field.
const DateLayout = "2006-01-02"

// Opportunity is a presales record owned by the Flux API. The client only
// ever holds a transient copy.
type Opportunity struct {
	ID                    int64      `json:"id"`
	AccountName           string     `json:"account_name"`
	Opportunity           string     `json:"opportunity,omitempty"`
	RegionLocation        string     `json:"region_location,omitempty"`
	Region                string     `json:"region,omitempty"`
	SubRegion             string     `json:"sub_region,omitempty"`
	DealValueUSD          float64    `json:"deal_value_usd,omitempty"`
	ScopingDoc            string     `json:"scoping_doc,omitempty"`
	VectorLink            string     `json:"vector_link,omitempty"`
	ChargingOnVector      bool       `json:"charging_on_vector"`
	PeriodOfPresalesWeeks int        `json:"period_of_presales_weeks,omitempty"`
	Status                string     `json:"status,omitempty"`
	AssigneeFromGSD       string     `json:"assignee_from_gsd,omitempty"`
	PursuitLead           string     `json:"pursuit_lead,omitempty"`
	DeliveryManager       string     `json:"delivery_manager,omitempty"`
	PresalesStartDate     string     `json:"presales_start_date,omitempty"`
	ExpectedPlannedStart  string     `json:"expected_planned_start,omitempty"`
	SOWSignatureDate      string     `json:"sow_signature_date,omitempty"`
	StaffingCompletedFlag bool       `json:"staffing_completed_flag"`
	StaffingPOC           string     `json:"staffing_poc,omitempty"`
	Remarks               string     `json:"remarks,omitempty"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// Assignees splits the comma separated GSD assignee field.
func (o Opportunity) Assignees() []string {
	var out []string
	for _, name := range strings.Split(o.AssigneeFromGSD, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// StartDate is the date used to place the opportunity on a timeline: the
// presales start, else the expected planned start. ok is false when neither
// parses.
func (o Opportunity) StartDate() (t time.Time, ok bool) {
	for _, s := range []string{o.PresalesStartDate, o.ExpectedPlannedStart} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(DateLayout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// OpportunityInput is the cleaned payload sent on create and update.
type OpportunityInput struct {
	AccountName           string  `json:"account_name"`
	Opportunity           string  `json:"opportunity"`
	RegionLocation        string  `json:"region_location"`
	Region                string  `json:"region"`
	SubRegion             string  `json:"sub_region"`
	DealValueUSD          float64 `json:"deal_value_usd"`
	ScopingDoc            string  `json:"scoping_doc"`
	VectorLink            string  `json:"vector_link"`
	ChargingOnVector      bool    `json:"charging_on_vector"`
	PeriodOfPresalesWeeks int     `json:"period_of_presales_weeks"`
	Status                string  `json:"status"`
	AssigneeFromGSD       string  `json:"assignee_from_gsd"`
	PursuitLead           string  `json:"pursuit_lead"`
	DeliveryManager       string  `json:"delivery_manager"`
	PresalesStartDate     string  `json:"presales_start_date"`
	ExpectedPlannedStart  string  `json:"expected_planned_start"`
	SOWSignatureDate      string  `json:"sow_signature_date"`
	StaffingCompletedFlag bool    `json:"staffing_completed_flag"`
	StaffingPOC           string  `json:"staffing_poc"`
	Remarks               string  `json:"remarks"`
}
