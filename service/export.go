package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/AnTengye/contractledger/model"
)

const exportSheet = "Contracts"

var exportHeaders = []string{
	"Contract ID",
	"App ID",
	"Renewal Date",
	"Review Date",
	"Overall Total Value",
	"Service",
	"License Type",
	"Pricing Model",
	"Cost Per User",
	"Number Of Licenses",
	"Total Cost",
	"Document URL",
}

// ContractLister is the read side the exporter needs.
type ContractLister interface {
	ListContracts(ctx context.Context, companyID string) ([]*model.Contract, error)
}

// Exporter renders a company's contracts as an XLSX workbook.
type Exporter struct {
	contracts ContractLister
	logger    *slog.Logger
}

func NewExporter(contracts ContractLister, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{contracts: contracts, logger: logger}
}

// ExportXLSX writes one row per service. Contract columns repeat on every row
// of the contract; a contract without services gets a single row. The last
// row sums the overall totals.
func (e *Exporter) ExportXLSX(ctx context.Context, companyID string) ([]byte, error) {
	start := time.Now()

	contracts, err := e.contracts.ListContracts(ctx, companyID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(exportSheet, cell, h)
	}

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(exportSheet, cell, v)
	}

	var total float64
	for _, c := range contracts {
		if c.OverallTotalValue != nil {
			total += *c.OverallTotalValue
		}
		services := c.Services
		if len(services) == 0 {
			services = []*model.Service{nil}
		}
		for _, s := range services {
			write(1, c.ID)
			write(2, c.AppID)
			write(3, formatDate(c.RenewalDate))
			write(4, formatDate(c.ReviewDate))
			if c.OverallTotalValue != nil {
				write(5, *c.OverallTotalValue)
			}
			if s != nil {
				write(6, s.Name)
				write(7, string(s.LicenseType))
				write(8, string(s.PricingModel))
				if s.UnitCost != nil {
					write(9, *s.UnitCost)
				}
				if s.UnitCount != nil {
					write(10, *s.UnitCount)
				}
				if s.TotalCost != nil {
					write(11, *s.TotalCost)
				}
			}
			write(12, c.DocumentURL)
			row++
		}
	}

	write(1, "Total")
	write(5, total)

	_ = f.SetColWidth(exportSheet, "A", "B", 38)
	_ = f.SetColWidth(exportSheet, "C", "D", 14)
	_ = f.SetColWidth(exportSheet, "F", "F", 28)
	_ = f.SetColWidth(exportSheet, "L", "L", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("contracts exported",
		"company_id", companyID,
		"contracts", len(contracts),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
