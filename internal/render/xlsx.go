package render

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/CZERTAINLY/Prospect/internal/model"
)

// Sheet is the name of the worksheet XLSX writes the result to.
const Sheet = "Result"

// XLSX returns a workbook with the result as a two column table and a bar
// chart next to it. An empty result produces the table header only.
func XLSX(result model.Result) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", Sheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	headers := []string{"Label", "Value"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(Sheet, cell, h); err != nil {
			return nil, fmt.Errorf("xlsx header: %w", err)
		}
	}

	for i, e := range result {
		row := i + 2
		label, _ := excelize.CoordinatesToCellName(1, row)
		value, _ := excelize.CoordinatesToCellName(2, row)
		if err := f.SetCellValue(Sheet, label, e.Label); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", row, err)
		}
		if err := f.SetCellValue(Sheet, value, e.Value); err != nil {
			return nil, fmt.Errorf("xlsx row %d: %w", row, err)
		}
	}
	_ = f.SetColWidth(Sheet, "A", "A", 24)
	_ = f.SetColWidth(Sheet, "B", "B", 12)

	if len(result) > 0 {
		last := len(result) + 1
		err := f.AddChart(Sheet, "D2", &excelize.Chart{
			Type: excelize.Bar,
			Series: []excelize.ChartSeries{
				{
					Name:       fmt.Sprintf("%s!$B$1", Sheet),
					Categories: fmt.Sprintf("%s!$A$2:$A$%d", Sheet, last),
					Values:     fmt.Sprintf("%s!$B$2:$B$%d", Sheet, last),
				},
			},
			Title: []excelize.RichTextRun{{Text: Sheet}},
		})
		if err != nil {
			return nil, fmt.Errorf("xlsx chart: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
