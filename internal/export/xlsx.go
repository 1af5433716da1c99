// Package export renders the job ledger as an XLSX workbook.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/sessionscribe/sessionscribe/internal/ledger"
)

type Exporter struct {
	ledger ledger.Ledger
	logger *slog.Logger
}

func NewExporter(led ledger.Ledger, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{ledger: led, logger: logger}
}

// JobsXLSX returns a workbook (as bytes) with one row per ledger job.
func (e *Exporter) JobsXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := e.ledger.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Jobs"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Job ID",
		"Chat ID",
		"Status",
		"Stage",
		"Error",
		"Started At",
		"Finished At",
		"Duration (ms)",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.JobID.String())
		write(2, r.ChatID)
		write(3, string(r.Status))
		write(4, string(r.Stage))

		errText := ""
		if r.Error != nil {
			errText = truncate(*r.Error, 140)
		}
		write(5, errText)

		write(6, r.StartedAt.Format("2006-01-02 15:04:05"))
		if r.FinishedAt != nil {
			write(7, r.FinishedAt.Format("2006-01-02 15:04:05"))
		} else {
			write(7, "")
		}
		if r.DurationMS != nil {
			write(8, *r.DurationMS)
		} else {
			write(8, "")
		}

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // job id
	_ = f.SetColWidth(sheet, "B", "B", 14) // chat id
	_ = f.SetColWidth(sheet, "C", "D", 12) // status, stage
	_ = f.SetColWidth(sheet, "E", "E", 60) // error
	_ = f.SetColWidth(sheet, "F", "G", 20) // timestamps
	_ = f.SetColWidth(sheet, "H", "H", 14) // duration

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
