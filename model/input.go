package model

// ServiceInput is a service line item as sent by API callers.
type ServiceInput struct {
	Name         string   `json:"name" validate:"required"`
	LicenseType  string   `json:"license_type" validate:"required"`
	PricingModel string   `json:"pricing_model" validate:"required"`
	UnitCost     *float64 `json:"cost_per_user" validate:"omitempty,gte=0"`
	UnitCount    *int64   `json:"number_of_licenses" validate:"omitempty,gte=0"`
	TotalCost    *float64 `json:"total_cost" validate:"omitempty,gte=0"`
}

// CreateContractInput is the body of a create request.
type CreateContractInput struct {
	CompanyID         string         `json:"company_id" validate:"required"`
	AppID             string         `json:"app_id" validate:"required"`
	RenewalDate       string         `json:"renewal_date"`
	ReviewDate        string         `json:"review_date"`
	OverallTotalValue *float64       `json:"overall_total_value" validate:"omitempty,gte=0"`
	Notes             string         `json:"notes"`
	ContactDetails    string         `json:"contact_details"`
	Services          []ServiceInput `json:"services" validate:"dive"`
}

// UpdateContractInput is the body of an update request. Absent fields are
// left untouched. "services": [] removes every service.
type UpdateContractInput struct {
	RenewalDate       *string         `json:"renewal_date"`
	ReviewDate        *string         `json:"review_date"`
	OverallTotalValue *float64        `json:"overall_total_value" validate:"omitempty,gte=0"`
	Notes             *string         `json:"notes"`
	ContactDetails    *string         `json:"contact_details"`
	Services          *[]ServiceInput `json:"services" validate:"omitempty,dive"`
}

// SelectAppInput associates an app with a company.
type SelectAppInput struct {
	CompanyID string `json:"company_id" validate:"required"`
	AppID     string `json:"app_id" validate:"required"`
}
