package analytics

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"streamscribe/internal/types"
)

// Report is everything the admin export contains for one window.
type Report struct {
	From    string
	To      string
	Totals  Summary
	ByTier  map[string]Summary
	ByDay   map[string]Summary
	TopN    []UserSpend
	Records []types.CreditUsage
}

// BuildReport assembles the window report from raw accounting entries.
func BuildReport(from, to string, records []types.CreditUsage, topN int) Report {
	return Report{
		From:    from,
		To:      to,
		Totals:  Summarize(records),
		ByTier:  GroupByTier(records),
		ByDay:   GroupByPeriod(records, PeriodDay),
		TopN:    TopUsersByCost(records, topN),
		Records: records,
	}
}

// WriteXLSX renders the report as a workbook: a summary sheet, per-tier and
// per-day breakdowns, and the raw entries.
func WriteXLSX(w io.Writer, rep Report) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	f.SetSheetName("Sheet1", summarySheet)

	rows := [][]interface{}{
		{"StreamScribe usage report"},
		{"Window", rep.From + " .. " + rep.To},
		{},
		{"Total upstream cost", rep.Totals.TotalCost},
		{"Total revenue", rep.Totals.TotalRevenue},
		{"Total profit", rep.Totals.TotalProfit},
		{"Total hours", rep.Totals.TotalDurationHr},
		{"Jobs", rep.Totals.JobCount},
		{"Unique users", rep.Totals.UniqueUsers},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("summary row: %w", err)
		}
	}

	if err := writeGroupSheet(f, "By tier", rep.ByTier); err != nil {
		return err
	}
	if err := writeGroupSheet(f, "By day", rep.ByDay); err != nil {
		return err
	}

	if _, err := f.NewSheet("Top users"); err != nil {
		return err
	}
	header := []interface{}{"User", "Cost", "Jobs", "Hours"}
	if err := f.SetSheetRow("Top users", "A1", &header); err != nil {
		return err
	}
	for i, u := range rep.TopN {
		row := []interface{}{u.UserID, u.TotalCost, u.JobCount, u.Hours}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow("Top users", cell, &row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet("Entries"); err != nil {
		return err
	}
	entryHeader := []interface{}{
		"Created", "User", "Tier", "Minutes", "Upstream cost", "Profit", "Words", "Language",
	}
	if err := f.SetSheetRow("Entries", "A1", &entryHeader); err != nil {
		return err
	}
	for i, r := range rep.Records {
		row := []interface{}{
			r.CreatedAt.UTC().Format("2006-01-02 15:04"),
			r.UserID.Hex(), r.Tier, r.DurationMinutes,
			r.UpstreamCost, r.Profit, r.WordCount, r.Language,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow("Entries", cell, &row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func writeGroupSheet(f *excelize.File, sheet string, groups map[string]Summary) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	header := []interface{}{"Group", "Cost", "Revenue", "Profit", "Hours", "Jobs", "Users"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		s := groups[k]
		row := []interface{}{k, s.TotalCost, s.TotalRevenue, s.TotalProfit, s.TotalDurationHr, s.JobCount, s.UniqueUsers}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
