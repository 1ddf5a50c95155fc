package export

import (
	"fmt"
	"io"
	"time"

	"github.com/cam3ron2/github-stats-card/internal/stats"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet       = "Summary"
	languagesSheet     = "Languages"
	contributionsSheet = "Contributions"
)

// WriteXLSX writes record as a workbook with one sheet each for the summary
// counters, the ranked languages and the contribution calendar.
func WriteXLSX(w io.Writer, record stats.UserStats) error {
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	if err := book.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := book.NewSheet(languagesSheet); err != nil {
		return fmt.Errorf("create languages sheet: %w", err)
	}
	if _, err := book.NewSheet(contributionsSheet); err != nil {
		return fmt.Errorf("create contributions sheet: %w", err)
	}

	header, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRows(book, summarySheet, header, []any{"Field", "Value"}, summaryRows(record)); err != nil {
		return err
	}

	languageRows := make([][]any, 0, len(record.TopLanguages))
	for _, language := range record.TopLanguages {
		color := ""
		if language.Color != nil {
			color = *language.Color
		}
		languageRows = append(languageRows, []any{language.LanguageName, color, language.Value})
	}
	if err := writeRows(book, languagesSheet, header, []any{"Language", "Color", "Bytes"}, languageRows); err != nil {
		return err
	}

	dayRows := make([][]any, 0, len(record.ContributionData))
	for _, day := range record.ContributionData {
		dayRows = append(dayRows, []any{day.Date, day.ContributionCount})
	}
	if err := writeRows(book, contributionsSheet, header, []any{"Date", "Contributions"}, dayRows); err != nil {
		return err
	}

	book.SetActiveSheet(0)
	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func summaryRows(record stats.UserStats) [][]any {
	rows := [][]any{
		{"Name", record.Name},
		{"Username", record.Username},
		{"Avatar URL", record.AvatarURL},
		{"Stars", record.StarCount},
		{"Forks", record.ForkCount},
		{"Commits", record.TotalCommits},
		{"Pull requests", record.TotalPullRequests},
		{"Open issues", record.OpenIssues},
		{"Closed issues", record.ClosedIssues},
		{"Contributions", record.TotalContributions},
		{"Repository views", record.RepoViews},
		{"Lines of code changed", record.LinesOfCodeChanged},
		{"Lines added", record.LinesAdded},
		{"Lines deleted", record.LinesDeleted},
		{"Lines changed", record.LinesChanged},
		{"Code bytes", record.CodeByteTotal},
		{"Pending repositories", record.PendingRepositories},
	}
	if record.Streak != nil {
		rows = append(rows,
			[]any{"Current streak", record.Streak.Current},
			[]any{"Longest streak", record.Streak.Longest},
		)
	}
	if record.FetchedAt > 0 {
		rows = append(rows, []any{"Fetched at", time.UnixMilli(record.FetchedAt).UTC().Format(time.RFC3339)})
	}
	return rows
}

func writeRows(book *excelize.File, sheet string, style int, header []any, rows [][]any) error {
	if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := book.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}
