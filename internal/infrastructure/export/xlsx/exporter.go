package xlsx

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

const (
	SheetSummary     = "Summary"
	SheetAnnotations = "Annotations"
	SheetRedactions  = "Redactions"
	SheetCrop        = "Crop"
)

// Exporter writes a session snapshot as a workbook with one sheet per entity
// kind. Coordinates stay in page ratios.
type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Export(ctx context.Context, snapshot domain.Snapshot, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	summary := [][]any{
		{"Field", "Value"},
		{"Document", snapshot.Document.URI},
		{"Pages", snapshot.Info.Pages},
		{"Mode", snapshot.Mode.String()},
		{"Watermark", snapshot.Watermark.Text},
		{"Annotations", len(snapshot.Annotations)},
		{"Redactions", len(snapshot.Redactions)},
		{"Crop", snapshot.Crop != nil},
	}
	if err := writeSheet(f, SheetSummary, summary, header); err != nil {
		return err
	}

	annotations := [][]any{{"Page", "X", "Y", "Text"}}
	for _, a := range snapshot.Annotations {
		annotations = append(annotations, []any{a.PageNumber, a.X, a.Y, a.Text})
	}
	if err := addSheet(f, SheetAnnotations, annotations, header); err != nil {
		return err
	}

	redactions := [][]any{{"Page", "X", "Y", "Width", "Height"}}
	for _, r := range snapshot.Redactions {
		redactions = append(redactions, []any{r.PageNumber, r.X, r.Y, r.Width, r.Height})
	}
	if err := addSheet(f, SheetRedactions, redactions, header); err != nil {
		return err
	}

	crop := [][]any{{"Page", "Left", "Top", "Right", "Bottom", "Width", "Height"}}
	if c := snapshot.Crop; c != nil {
		crop = append(crop, []any{c.PageNumber, c.Left, c.Top, c.Right, c.Bottom, c.Width, c.Height})
	}
	if err := addSheet(f, SheetCrop, crop, header); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func addSheet(f *excelize.File, name string, rows [][]any, header int) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	return writeSheet(f, name, rows, header)
}

func writeSheet(f *excelize.File, name string, rows [][]any, header int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", name, i+1, err)
		}
		values := row
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("%s row %d: %w", name, i+1, err)
		}
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return fmt.Errorf("%s header: %w", name, err)
	}
	if err := f.SetCellStyle(name, "A1", last, header); err != nil {
		return fmt.Errorf("%s header style: %w", name, err)
	}
	return nil
}
