package hranalytics

import "time"

// Filters scopes every dashboard query.
type Filters struct {
	DepartmentID *int64
	StartDate    time.Time
	EndDate      time.Time
}

// DepartmentValue returns the department id or zero when unscoped.
func (f Filters) DepartmentValue() int64 {
	if f.DepartmentID == nil {
		return 0
	}
	return *f.DepartmentID
}

// Days returns the inclusive number of days covered by the filter.
func (f Filters) Days() int {
	return int(f.EndDate.Sub(f.StartDate).Hours()/24) + 1
}

// AttendancePoint is the average worked hours of a single day.
type AttendancePoint struct {
	Date        string  `json:"date"`
	WorkedHours float64 `json:"worked_hours"`
}

// KPIBucket counts employees whose KPI score falls in a ten point band.
type KPIBucket struct {
	ScoreRange string `json:"score_range"`
	Count      int    `json:"count"`
}

// SalaryRow sums open contract wages of a department.
type SalaryRow struct {
	Department  string  `json:"department"`
	TotalSalary float64 `json:"total_salary"`
}

// LeavePoint counts validated leaves starting in a month.
type LeavePoint struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// DashboardData is the payload behind /hr_analytics/data.
type DashboardData struct {
	Error              bool              `json:"error,omitempty"`
	Message            string            `json:"message,omitempty"`
	TotalEmployees     int               `json:"total_employees"`
	TurnoverRate       float64           `json:"turnover_rate"`
	AvgSalary          float64           `json:"avg_salary"`
	KPIAverage         float64           `json:"kpi_average"`
	AvgKPI             float64           `json:"avg_kpi"`
	KPIDistribution    []KPIBucket       `json:"kpi_distribution"`
	AttendanceTrends   []AttendancePoint `json:"attendance_trends"`
	SalaryDistribution []SalaryRow       `json:"salary_distribution"`
	LeaveTrends        []LeavePoint      `json:"leave_trends"`
}

// ErrorEnvelope returns the zeroed payload answered when a request fails.
func ErrorEnvelope(message string) DashboardData {
	return DashboardData{
		Error:              true,
		Message:            message,
		KPIDistribution:    []KPIBucket{},
		AttendanceTrends:   []AttendancePoint{},
		SalaryDistribution: []SalaryRow{},
		LeaveTrends:        []LeavePoint{},
	}
}

// Department is an entry of the filter dropdown.
type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Stats mirrors the stored statistics report of the HR module.
type Stats struct {
	Name                   string    `json:"name"`
	DepartmentID           *int64    `json:"department_id"`
	DateFrom               string    `json:"date_from"`
	DateTo                 string    `json:"date_to"`
	TotalEmployees         int       `json:"total_employees"`
	TotalInactiveEmployees int       `json:"total_inactive_employees"`
	TurnoverRate           float64   `json:"turnover_rate"`
	AvgSalary              float64   `json:"avg_salary"`
	TotalSalaryCost        float64   `json:"total_salary_cost"`
	TotalLeaves            int       `json:"total_leaves"`
	AvgLeavesPerEmployee   float64   `json:"avg_leaves_per_employee"`
	AvgDailyHours          float64   `json:"avg_daily_hours"`
	TotalWorkedHours       float64   `json:"total_worked_hours"`
	AvgKPIScore            float64   `json:"avg_kpi_score"`
	ComputedAt             time.Time `json:"computed_at"`
}
