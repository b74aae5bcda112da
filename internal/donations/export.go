package donations

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Donation requests"

var exportHeaders = []any{
	"ID", "Requester", "Requester email", "Recipient", "Blood group",
	"District", "Upazila", "Hospital", "Address", "Date", "Time",
	"Status", "Donor", "Donor email",
}

// WriteXLSX writes requests as a spreadsheet.
func WriteXLSX(w io.Writer, requests []Request) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("donations: export: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("donations: export: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetCellStyle(exportSheet, "A1", "N1", style)
	}

	for i, req := range requests {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			req.ID, req.RequesterName, req.RequesterEmail, req.RecipientName, req.BloodGroup,
			req.District, req.Upazila, req.Hospital, req.Address, req.DonationDate, req.DonationTime,
			req.Status.Label(), req.DonorName, req.DonorEmail,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("donations: export: %w", err)
		}
	}
	_ = f.SetColWidth(exportSheet, "B", "D", 22)
	_ = f.SetColWidth(exportSheet, "H", "I", 32)
	_ = f.SetColWidth(exportSheet, "M", "N", 24)

	return f.Write(w)
}
