package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
)

// CSVFilename names the tabular export for a filter range.
func CSVFilename(f hranalytics.Filters) string {
	return "HR_Analytics_" + hranalytics.FormatDate(f.StartDate) + "_" + hranalytics.FormatDate(f.EndDate) + ".csv"
}

// WriteDashboardCSV writes the headline metrics followed by every series as
// Section,Label,Value rows.
func WriteDashboardCSV(w io.Writer, data hranalytics.DashboardData, f hranalytics.Filters) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Section", "Label", "Value"}); err != nil {
		return err
	}

	records := [][]string{
		{"Period", "From", hranalytics.FormatDate(f.StartDate)},
		{"Period", "To", hranalytics.FormatDate(f.EndDate)},
		{"Metrics", "Total Employees", strconv.Itoa(data.TotalEmployees)},
		{"Metrics", "Turnover Rate", formatFloat(data.TurnoverRate)},
		{"Metrics", "Average Salary", formatFloat(data.AvgSalary)},
		{"Metrics", "Average KPI", formatFloat(data.KPIAverage)},
	}
	for _, p := range data.AttendanceTrends {
		records = append(records, []string{"Attendance", p.Date, formatFloat(p.WorkedHours)})
	}
	for _, b := range data.KPIDistribution {
		records = append(records, []string{"KPI", b.ScoreRange, strconv.Itoa(b.Count)})
	}
	for _, r := range data.SalaryDistribution {
		records = append(records, []string{"Salary", r.Department, formatFloat(r.TotalSalary)})
	}
	for _, p := range data.LeaveTrends {
		records = append(records, []string{"Leave", p.Month, strconv.Itoa(p.Count)})
	}

	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}

// WriteStatsCSV writes a stored statistics report as Metric,Value rows.
func WriteStatsCSV(w io.Writer, s hranalytics.Stats) error {
	writer := csv.NewWriter(w)
	department := ""
	if s.DepartmentID != nil {
		department = strconv.FormatInt(*s.DepartmentID, 10)
	}
	return writer.WriteAll([][]string{
		{"Metric", "Value"},
		{"Name", s.Name},
		{"Department", department},
		{"Date From", s.DateFrom},
		{"Date To", s.DateTo},
		{"Total Employees", strconv.Itoa(s.TotalEmployees)},
		{"Inactive Employees", strconv.Itoa(s.TotalInactiveEmployees)},
		{"Turnover Rate", formatFloat(s.TurnoverRate)},
		{"Average Salary", formatFloat(s.AvgSalary)},
		{"Total Salary Cost", formatFloat(s.TotalSalaryCost)},
		{"Total Leaves", strconv.Itoa(s.TotalLeaves)},
		{"Leaves per Employee", formatFloat(s.AvgLeavesPerEmployee)},
		{"Average Daily Hours", formatFloat(s.AvgDailyHours)},
		{"Total Worked Hours", formatFloat(s.TotalWorkedHours)},
		{"Average KPI", formatFloat(s.AvgKPIScore)},
	})
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
