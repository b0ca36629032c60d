package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"sportsync/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	jobsSheet    = "Jobs"
	summarySheet = "Summary"
	timeLayout   = "2006-01-02 15:04:05"
)

var jobColumns = []string{
	"ID", "Type", "Status", "Priority", "Triggered by", "Progress", "Processed", "Total",
	"Retries", "Created", "Started", "Completed", "Duration (s)", "Error",
}

var statusFill = map[models.JobStatus]string{
	models.JobCompleted:  "#E2EFDA",
	models.JobFailed:     "#F8CBAD",
	models.JobCancelled:  "#EDEDED",
	models.JobProcessing: "#DDEBF7",
	models.JobPending:    "#FFF2CC",
}

// FileName names a job report covering [from, to].
func FileName(from, to time.Time) string {
	return fmt.Sprintf("jobs_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// WriteJobs renders jobs and their aggregate stats as an XLSX workbook.
func WriteJobs(w io.Writer, jobs []models.SyncJob, stats *models.JobStats, from, to time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(jobsSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeJobRows(f, jobs); err != nil {
		return err
	}
	if err := writeSummary(f, stats, from, to, len(jobs)); err != nil {
		return err
	}
	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeJobRows(f *excelize.File, jobs []models.SyncJob) error {
	header, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#BDD7EE"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, name := range jobColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(jobsSheet, cell, name); err != nil {
			return err
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(jobColumns))
	_ = f.SetCellStyle(jobsSheet, "A1", lastCol+"1", header)
	_ = f.SetPanes(jobsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	styles := make(map[models.JobStatus]int, len(statusFill))
	for status, color := range statusFill {
		id, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}})
		if err != nil {
			return err
		}
		styles[status] = id
	}

	for i := range jobs {
		j := &jobs[i]
		row := i + 2
		values := []any{
			j.ID, string(j.Type), string(j.Status), string(j.Priority), j.TriggeredBy, j.Progress,
			j.ProcessedItems, j.TotalItems, j.RetryCount, formatTime(&j.CreatedAt), formatTime(j.StartedAt),
			formatTime(j.CompletedAt), duration(j), deref(j.ErrorMessage),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(jobsSheet, cell, &values); err != nil {
			return fmt.Errorf("write job %s: %w", j.ID, err)
		}
		if style, ok := styles[j.Status]; ok {
			cell, _ := excelize.CoordinatesToCellName(3, row)
			_ = f.SetCellStyle(jobsSheet, cell, cell, style)
		}
	}

	_ = f.SetColWidth(jobsSheet, "A", "A", 38)
	_ = f.SetColWidth(jobsSheet, "B", "M", 14)
	_ = f.SetColWidth(jobsSheet, "N", "N", 60)
	return nil
}

func writeSummary(f *excelize.File, stats *models.JobStats, from, to time.Time, listed int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	title, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	_ = f.SetCellValue(summarySheet, "A1", fmt.Sprintf("Period: %s - %s", from.Format(models.DateLayout), to.Format(models.DateLayout)))
	_ = f.SetCellStyle(summarySheet, "A1", "A1", title)
	_ = f.MergeCell(summarySheet, "A1", "C1")
	_ = f.SetCellValue(summarySheet, "A2", "Jobs listed")
	_ = f.SetCellValue(summarySheet, "B2", listed)

	if stats == nil {
		return nil
	}
	_ = f.SetCellValue(summarySheet, "A3", "Jobs stored")
	_ = f.SetCellValue(summarySheet, "B3", stats.Total)

	row := 5
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "By status")
	row++
	for _, status := range models.JobStatuses {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), string(status))
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), stats.ByStatus[status])
		row++
	}

	row++
	_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "By type")
	row++
	types := make([]string, 0, len(stats.ByType))
	for t := range stats.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), t)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), stats.ByType[models.JobType(t)])
		row++
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 20)
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func duration(j *models.SyncJob) any {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return ""
	}
	return j.CompletedAt.Sub(*j.StartedAt).Round(time.Millisecond).Seconds()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
