package model

import "time"

// ContractDraft is a normalized contract that has no identity yet.
type ContractDraft struct {
	AppName           string
	Category          string
	RenewalDate       *time.Time
	ReviewDate        *time.Time
	OverallTotalValue *float64
	Notes             string
	ContactDetails    string
	ContractURL       string
}

// ServiceDraft is a normalized service line item that has no identity yet.
type ServiceDraft struct {
	Name         string
	LicenseType  LicenseType
	PricingModel PricingModel
	UnitCost     *float64
	UnitCount    *int64
	TotalCost    *float64
}

// Adjustment records a value the normalizer recomputed.
type Adjustment struct {
	Field    string  `json:"field"`
	Stated   float64 `json:"stated"`
	Computed float64 `json:"computed"`
}

// ExtractedContractData is the normalizer output for one document.
type ExtractedContractData struct {
	Contract    ContractDraft
	Services    []ServiceDraft
	Adjustments []Adjustment
}

// NewContract is everything the persistence layer needs to create a contract.
type NewContract struct {
	CompanyID string
	AppID     string
	Contract  ContractDraft
	Services  []ServiceDraft
}

// ContractUpdate is a partial update. Nil fields are left untouched; a non-nil
// Services pointer replaces the whole service set, even when it points to an
// empty slice.
type ContractUpdate struct {
	RenewalDate       *time.Time
	ReviewDate        *time.Time
	OverallTotalValue *float64
	Notes             *string
	ContactDetails    *string
	DocumentPath      *string
	DocumentURL       *string
	Services          *[]ServiceDraft
}

// Upload is a document received from a caller.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}
