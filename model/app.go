package model

import "time"

// App catalogue categories.
const (
	CategoryIdentity     = "Identity & Access Management"
	CategoryHR           = "HR & People"
	CategoryFinance      = "Finance & Operations"
	CategoryDevelopment  = "Development & DevOps"
	CategoryProductivity = "Productivity & Collaboration"
	CategorySales        = "Sales & Marketing"
	CategoryAnalytics    = "Analytics & Customer Success"
	CategorySecurity     = "Security & Compliance"
	CategorySupport      = "Support & Service"
	CategoryAsset        = "Asset & Resource Management"
	CategoryCSV          = "CSV Uploads"
)

// Categories lists every known app category.
var Categories = []string{
	CategoryIdentity,
	CategoryHR,
	CategoryFinance,
	CategoryDevelopment,
	CategoryProductivity,
	CategorySales,
	CategoryAnalytics,
	CategorySecurity,
	CategorySupport,
	CategoryAsset,
	CategoryCSV,
}

// App is a SaaS product a company may hold a contract for.
type App struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	IsPredefined bool      `json:"is_predefined"`
	APISupported bool      `json:"api_supported"`
	CreatedAt    time.Time `json:"created_at"`
}
