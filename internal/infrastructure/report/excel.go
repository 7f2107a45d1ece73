package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/dmkorolev/imageflow/internal/core/domain"
	"github.com/dmkorolev/imageflow/internal/core/ports"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExcelReporter writes the final-commit summary as an XLSX workbook into
// blob storage so back-office users can audit what a batch produced.
type ExcelReporter struct {
	storage ports.ObjectStorage
}

func NewExcelReporter(storage ports.ObjectStorage) *ExcelReporter {
	return &ExcelReporter{storage: storage}
}

func (r *ExcelReporter) WriteCommitReport(ctx context.Context, batchID string, groups []domain.CommittedGroup) (string, error) {
	f, err := BuildWorkbook(groups)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("serialize commit report: %w", err)
	}

	key := fmt.Sprintf("reports/%s.xlsx", batchID)
	if _, err := r.storage.Save(ctx, key, buf, xlsxContentType); err != nil {
		return "", fmt.Errorf("store commit report: %w", err)
	}
	return r.storage.PublicURL(key), nil
}

// BuildWorkbook renders one sheet per concern: a group overview and a
// flat item listing.
func BuildWorkbook(groups []domain.CommittedGroup) (*excelize.File, error) {
	f := excelize.NewFile()

	const groupsSheet = "Groups"
	if err := f.SetSheetName("Sheet1", groupsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(groupsSheet, "A1", &[]any{"Group", "Items"}); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, g := range groups {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(groupsSheet, cell, &[]any{g.Name, len(g.Items)}); err != nil {
			return nil, fmt.Errorf("write group row: %w", err)
		}
	}

	const itemsSheet = "Items"
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, fmt.Errorf("create items sheet: %w", err)
	}
	if err := f.SetSheetRow(itemsSheet, "A1", &[]any{"Group", "Subtype", "Output URL", "Original filename"}); err != nil {
		return nil, fmt.Errorf("write items header: %w", err)
	}
	row := 2
	for _, g := range groups {
		for _, item := range g.Items {
			cell := fmt.Sprintf("A%d", row)
			values := []any{g.Name, string(item.Subtype), item.OutputURL, item.OriginalFilename}
			if err := f.SetSheetRow(itemsSheet, cell, &values); err != nil {
				return nil, fmt.Errorf("write item row: %w", err)
			}
			row++
		}
	}
	return f, nil
}
