package model

import (
	"time"
)

// Tolerance is the allowed drift between a stated amount and its computed value.
const Tolerance = 0.01

// Decimal places kept for stored amounts. Unit costs keep more places than
// totals so that unit cost times count reproduces the stored total.
const (
	AmountScale   = 2
	UnitCostScale = 6
)

// LicenseType is the billing cadence of a service.
type LicenseType string

const (
	LicenseMonthly   LicenseType = "Monthly"
	LicenseAnnual    LicenseType = "Annual"
	LicenseQuarterly LicenseType = "Quarterly"
	LicenseOther     LicenseType = "Other"
)

// PricingModel is how a service is priced.
type PricingModel string

const (
	PricingFlatRated    PricingModel = "Flat rated"
	PricingTiered       PricingModel = "Tiered"
	PricingProRated     PricingModel = "Pro-rated"
	PricingFeatureBased PricingModel = "Feature based"
)

// Contract is a company's agreement to use one application.
type Contract struct {
	ID                string     `json:"id"`
	CompanyID         string     `json:"company_id"`
	AppID             string     `json:"app_id"`
	RenewalDate       *time.Time `json:"renewal_date,omitempty"`
	ReviewDate        *time.Time `json:"review_date,omitempty"`
	OverallTotalValue *float64   `json:"overall_total_value,omitempty"`
	Notes             string     `json:"notes,omitempty"`
	ContactDetails    string     `json:"contact_details,omitempty"`
	DocumentPath      string     `json:"contract_file_path,omitempty"`
	DocumentURL       string     `json:"contract_file_url,omitempty"`
	Services          []*Service `json:"services"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Service is a billable line item of a contract.
type Service struct {
	ID           string       `json:"id"`
	ContractID   string       `json:"contract_id"`
	Name         string       `json:"name"`
	LicenseType  LicenseType  `json:"license_type"`
	PricingModel PricingModel `json:"pricing_model"`
	UnitCost     *float64     `json:"cost_per_user,omitempty"`
	UnitCount    *int64       `json:"number_of_licenses,omitempty"`
	TotalCost    *float64     `json:"total_cost,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ServicesTotal sums the total cost of every service that has one.
// The second return value is false when no service carries a total.
func ServicesTotal(services []*Service) (float64, bool) {
	var sum float64
	var found bool
	for _, s := range services {
		if s.TotalCost != nil {
			sum += *s.TotalCost
			found = true
		}
	}
	return sum, found
}

// ContractPatch lists the contract columns an update may change.
// Nil fields are left untouched.
type ContractPatch struct {
	RenewalDate       *time.Time
	ReviewDate        *time.Time
	OverallTotalValue *float64
	Notes             *string
	ContactDetails    *string
	DocumentPath      *string
	DocumentURL       *string
	UpdatedAt         *time.Time
}

// IsEmpty reports whether the patch changes no column.
func (p ContractPatch) IsEmpty() bool {
	return p.RenewalDate == nil &&
		p.ReviewDate == nil &&
		p.OverallTotalValue == nil &&
		p.Notes == nil &&
		p.ContactDetails == nil &&
		p.DocumentPath == nil &&
		p.DocumentURL == nil
}
