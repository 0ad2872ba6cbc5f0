package hranalytics

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const buildTimeout = 20 * time.Second

// Service coordinates HR query execution with the cache layer.
type Service struct {
	repo  Repository
	cache *Cache
	group singleflight.Group
	now   func() time.Time
}

// NewService wires a Repository with a Cache helper.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// DepartmentExists lets the service act as the filter DepartmentChecker.
func (s *Service) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.DepartmentExists(ctx, id)
}

// Departments lists the departments offered by the filter dropdown.
func (s *Service) Departments(ctx context.Context) ([]Department, error) {
	departments, err := s.repo.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	if departments == nil {
		departments = []Department{}
	}
	return departments, nil
}

// Dashboard assembles every metric and series for the filters. Concurrent
// callers asking for the same scope share one build.
func (s *Service) Dashboard(ctx context.Context, filters Filters) (DashboardData, error) {
	key := fmt.Sprintf("dashboard:%s:%s:%s", departmentToken(filters.DepartmentID), FormatDate(filters.StartDate), FormatDate(filters.EndDate))
	ch := s.group.DoChan(key, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		return s.buildDashboard(buildCtx, filters)
	})
	select {
	case <-ctx.Done():
		return DashboardData{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return DashboardData{}, res.Err
		}
		return res.Val.(DashboardData), nil
	}
}

func (s *Service) buildDashboard(ctx context.Context, filters Filters) (DashboardData, error) {
	var (
		counts     headcount
		wages      WageSummary
		kpi        KPISummary
		attendance []AttendanceDay
		salaries   []SalaryRow
		leaves     []LeavePoint
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.headcount(gctx, filters.DepartmentID)
		return err
	})
	g.Go(func() (err error) {
		wages, err = s.wages(gctx, filters.DepartmentID)
		return err
	})
	g.Go(func() (err error) {
		kpi, err = s.kpi(gctx, filters.DepartmentID)
		return err
	})
	g.Go(func() (err error) {
		attendance, err = s.attendance(gctx, filters)
		return err
	})
	g.Go(func() (err error) {
		salaries, err = s.salaries(gctx, filters.DepartmentID)
		return err
	})
	g.Go(func() (err error) {
		leaves, err = s.leaves(gctx, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardData{}, err
	}

	data := DashboardData{
		TotalEmployees:     counts.Active,
		TurnoverRate:       round2(counts.turnover()),
		AvgSalary:          round2(wages.average()),
		KPIAverage:         round2(kpi.Average),
		AvgKPI:             round2(kpi.Average),
		KPIDistribution:    kpi.Distribution,
		AttendanceTrends:   make([]AttendancePoint, 0, len(attendance)),
		SalaryDistribution: make([]SalaryRow, 0, len(salaries)),
		LeaveTrends:        make([]LeavePoint, 0, len(leaves)),
	}
	if data.KPIDistribution == nil {
		data.KPIDistribution = []KPIBucket{}
	}
	for _, day := range attendance {
		data.AttendanceTrends = append(data.AttendanceTrends, AttendancePoint{
			Date:        FormatDate(day.Day),
			WorkedHours: round2(day.AvgHours),
		})
	}
	for _, row := range salaries {
		data.SalaryDistribution = append(data.SalaryDistribution, SalaryRow{Department: row.Department, TotalSalary: round2(row.TotalSalary)})
	}
	data.LeaveTrends = append(data.LeaveTrends, leaves...)
	return data, nil
}

// Stats computes the statistics report for the filters.
func (s *Service) Stats(ctx context.Context, filters Filters) (Stats, error) {
	var (
		counts     headcount
		wages      WageSummary
		kpi        KPISummary
		attendance []AttendanceDay
		leaves     []LeavePoint
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.headcount(gctx, filters.DepartmentID)
		return err
	})
	g.Go(func() (err error) {
		wages, err = s.wages(gctx, filters.DepartmentID)
		return err
	})
	g.Go(func() (err error) {
		kpi, err = s.kpi(gctx, filters.DepartmentID)
		return err
	})
	g.Go(func() (err error) {
		attendance, err = s.attendance(gctx, filters)
		return err
	})
	g.Go(func() (err error) {
		leaves, err = s.leaves(gctx, filters)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	now := s.now().UTC()
	stats := Stats{
		Name:                   "HR Analytics - " + now.Format(dateLayout),
		DepartmentID:           filters.DepartmentID,
		DateFrom:               FormatDate(filters.StartDate),
		DateTo:                 FormatDate(filters.EndDate),
		TotalEmployees:         counts.Active,
		TotalInactiveEmployees: counts.Inactive,
		TurnoverRate:           round2(counts.turnover()),
		AvgSalary:              round2(wages.openAverage()),
		TotalSalaryCost:        round2(wages.Total),
		AvgKPIScore:            round2(kpi.Average),
		ComputedAt:             now,
	}
	for _, leave := range leaves {
		stats.TotalLeaves += leave.Count
	}
	if counts.Active > 0 {
		stats.AvgLeavesPerEmployee = round2(float64(stats.TotalLeaves) / float64(counts.Active))
	}
	for _, day := range attendance {
		stats.TotalWorkedHours += day.TotalHours
	}
	if len(attendance) > 0 {
		stats.AvgDailyHours = round2(stats.TotalWorkedHours / float64(len(attendance)))
	}
	stats.TotalWorkedHours = round2(stats.TotalWorkedHours)
	return stats, nil
}

// RefreshStats drops every cached aggregate by bumping the cache version.
func (s *Service) RefreshStats(ctx context.Context) (int64, error) {
	ver, err := s.cache.Bump(ctx)
	if err != nil {
		return 0, fmt.Errorf("hranalytics: bump cache: %w", err)
	}
	return ver, nil
}

type headcount struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

func (h headcount) turnover() float64 {
	total := h.Active + h.Inactive
	if total == 0 {
		return 0
	}
	return float64(h.Inactive) / float64(total) * 100
}

func (w WageSummary) average() float64 {
	if w.Count == 0 {
		return 0
	}
	return w.Total / float64(w.Count)
}

// openAverage spreads the wage total over every open contract, zero wages
// included, as the stats record does.
func (w WageSummary) openAverage() float64 {
	if w.Open == 0 {
		return 0
	}
	return w.Total / float64(w.Open)
}

func (s *Service) headcount(ctx context.Context, departmentID *int64) (headcount, error) {
	return cached(ctx, s.cache, keyHeadcount(departmentID), func(ctx context.Context) (headcount, error) {
		active, inactive, err := s.repo.CountEmployees(ctx, departmentID)
		return headcount{Active: active, Inactive: inactive}, err
	})
}

func (s *Service) wages(ctx context.Context, departmentID *int64) (WageSummary, error) {
	return cached(ctx, s.cache, keyWages(departmentID), func(ctx context.Context) (WageSummary, error) {
		return s.repo.OpenContractWages(ctx, departmentID)
	})
}

func (s *Service) kpi(ctx context.Context, departmentID *int64) (KPISummary, error) {
	now := s.now().UTC()
	today := truncateDay(now)
	return cached(ctx, s.cache, keyKPI(departmentID, today), func(ctx context.Context) (KPISummary, error) {
		yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		yearEnd := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		since := now.AddDate(0, 0, -KPIAttendanceWindow)
		activity, err := s.repo.EmployeeActivity(ctx, departmentID, yearStart, yearEnd, since)
		if err != nil {
			return KPISummary{}, err
		}
		return SummariseKPI(activity), nil
	})
}

func (s *Service) attendance(ctx context.Context, filters Filters) ([]AttendanceDay, error) {
	return cached(ctx, s.cache, keyAttendance(filters), func(ctx context.Context) ([]AttendanceDay, error) {
		return s.repo.AttendanceByDay(ctx, filters.DepartmentID, filters.StartDate, filters.EndDate)
	})
}

func (s *Service) salaries(ctx context.Context, departmentID *int64) ([]SalaryRow, error) {
	return cached(ctx, s.cache, keySalary(departmentID), func(ctx context.Context) ([]SalaryRow, error) {
		return s.repo.SalaryByDepartment(ctx, departmentID)
	})
}

func (s *Service) leaves(ctx context.Context, filters Filters) ([]LeavePoint, error) {
	return cached(ctx, s.cache, keyLeaves(filters), func(ctx context.Context) ([]LeavePoint, error) {
		return s.repo.LeavesByMonth(ctx, filters.DepartmentID, filters.StartDate, filters.EndDate)
	})
}

// cached resolves keyBase through the versioned cache, calling load on a miss.
func cached[T any](ctx context.Context, cache *Cache, keyBase string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if cache == nil {
		return load(ctx)
	}
	key, err := cache.BuildKey(ctx, keyBase)
	if err != nil {
		return zero, err
	}
	var value T
	err = cache.FetchJSON(ctx, key, &value, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		return zero, err
	}
	return value, nil
}
