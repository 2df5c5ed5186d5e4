package format

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// templateValidationRows is how many data rows get drop-down validation in a
// spreadsheet template.
const templateValidationRows = 1000

// TemplateColumn describes one column of an import template.
type TemplateColumn struct {
	Name     string
	Required bool
	// Allowed, when set, restricts the column to a fixed list of values.
	Allowed []string
}

// Template is an empty import file: the header row plus optional sample rows.
type Template struct {
	Columns []TemplateColumn
	Samples [][]string
}

// Names returns the column names in order.
func (t Template) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// RenderTemplate writes an import template in format f. Spreadsheet templates
// carry drop-down lists for columns with a fixed set of allowed values.
func RenderTemplate(w io.Writer, f Format, t Template) error {
	if f != Spreadsheet {
		return Render(w, f, Table{Columns: t.Names(), Rows: t.Samples})
	}

	file := excelize.NewFile()
	defer file.Close()

	header := t.Names()
	if err := file.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if len(header) > 0 {
		last, err := excelize.CoordinatesToCellName(len(header), 1)
		if err != nil {
			return err
		}
		if err := file.SetCellStyle(sheetName, "A1", last, bold); err != nil {
			return fmt.Errorf("header style: %w", err)
		}
	}

	for i, sample := range t.Samples {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := sample
		if err := file.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write sample row %d: %w", i+1, err)
		}
	}

	for i, col := range t.Columns {
		if len(col.Allowed) == 0 {
			continue
		}
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		dv := excelize.NewDataValidation(true)
		dv.Sqref = fmt.Sprintf("%s2:%s%d", name, name, templateValidationRows+1)
		if err := dv.SetDropList(col.Allowed); err != nil {
			return fmt.Errorf("column %s allowed values (%s): %w", col.Name, strings.Join(col.Allowed, ","), err)
		}
		if err := file.AddDataValidation(sheetName, dv); err != nil {
			return fmt.Errorf("column %s validation: %w", col.Name, err)
		}
	}

	return file.Write(w)
}
