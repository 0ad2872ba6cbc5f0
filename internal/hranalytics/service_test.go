package hranalytics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mu          sync.Mutex
	departments []Department
	active      int
	inactive    int
	wages       WageSummary
	activity    []EmployeeActivity
	attendance  []AttendanceDay
	salaries    []SalaryRow
	leaves      []LeavePoint
	countErr    error
	countCalls  int32
	wageCalls   int32
	gate        chan struct{}
	lastSince   time.Time
}

func (m *mockRepo) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	for _, d := range m.departments {
		if d.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepo) ListDepartments(ctx context.Context) ([]Department, error) {
	return m.departments, nil
}

func (m *mockRepo) CountEmployees(ctx context.Context, departmentID *int64) (int, int, error) {
	atomic.AddInt32(&m.countCalls, 1)
	if m.gate != nil {
		<-m.gate
	}
	return m.active, m.inactive, m.countErr
}

func (m *mockRepo) OpenContractWages(ctx context.Context, departmentID *int64) (WageSummary, error) {
	atomic.AddInt32(&m.wageCalls, 1)
	return m.wages, nil
}

func (m *mockRepo) EmployeeActivity(ctx context.Context, departmentID *int64, yearStart, yearEnd, since time.Time) ([]EmployeeActivity, error) {
	m.mu.Lock()
	m.lastSince = since
	m.mu.Unlock()
	return m.activity, nil
}

func (m *mockRepo) AttendanceByDay(ctx context.Context, departmentID *int64, from, to time.Time) ([]AttendanceDay, error) {
	return m.attendance, nil
}

func (m *mockRepo) SalaryByDepartment(ctx context.Context, departmentID *int64) ([]SalaryRow, error) {
	return m.salaries, nil
}

func (m *mockRepo) LeavesByMonth(ctx context.Context, departmentID *int64, from, to time.Time) ([]LeavePoint, error) {
	return m.leaves, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc := NewService(repo, NewCache(client, time.Minute))
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC) })
	return svc
}

func sampleRepo() *mockRepo {
	return &mockRepo{
		departments: []Department{{ID: 1, Name: "Engineering"}, {ID: 2, Name: "Sales"}},
		active:      8,
		inactive:    2,
		wages:       WageSummary{Count: 4, Open: 4, Total: 40_000_000},
		activity: []EmployeeActivity{
			{EmployeeID: 1, LeavesYTD: 0, AttendanceDays: 22},
			{EmployeeID: 2, LeavesYTD: 2, AttendanceDays: 0},
		},
		attendance: []AttendanceDay{
			{Day: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), Rows: 3, TotalHours: 24, AvgHours: 8.004},
		},
		salaries: []SalaryRow{{Department: "Engineering", TotalSalary: 25_000_000}},
		leaves:   []LeavePoint{{Month: "2025-02", Count: 3}, {Month: "2025-03", Count: 1}},
	}
}

func testFilters() Filters {
	return Filters{
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestDashboardAggregates(t *testing.T) {
	svc := newTestService(t, sampleRepo())

	data, err := svc.Dashboard(context.Background(), testFilters())
	require.NoError(t, err)

	assert.False(t, data.Error)
	assert.Equal(t, 8, data.TotalEmployees)
	assert.Equal(t, 20.0, data.TurnoverRate)
	assert.Equal(t, 10_000_000.0, data.AvgSalary)
	assert.Equal(t, 97.0, data.KPIAverage)
	assert.Equal(t, data.KPIAverage, data.AvgKPI)
	assert.Equal(t, []KPIBucket{{ScoreRange: "90-99", Count: 1}, {ScoreRange: "100-109", Count: 1}}, data.KPIDistribution)
	require.Len(t, data.AttendanceTrends, 1)
	assert.Equal(t, AttendancePoint{Date: "2025-03-01", WorkedHours: 8}, data.AttendanceTrends[0])
	assert.Len(t, data.SalaryDistribution, 1)
	assert.Len(t, data.LeaveTrends, 2)
}

func TestDashboardEmptyRepositoryKeepsSlices(t *testing.T) {
	svc := newTestService(t, &mockRepo{})

	data, err := svc.Dashboard(context.Background(), testFilters())
	require.NoError(t, err)
	assert.Zero(t, data.TurnoverRate)
	assert.Zero(t, data.AvgSalary)
	assert.NotNil(t, data.KPIDistribution)
	assert.NotNil(t, data.AttendanceTrends)
	assert.NotNil(t, data.SalaryDistribution)
	assert.NotNil(t, data.LeaveTrends)
}

func TestDashboardCachesUntilBump(t *testing.T) {
	repo := sampleRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	_, err := svc.Dashboard(ctx, testFilters())
	require.NoError(t, err)
	_, err = svc.Dashboard(ctx, testFilters())
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&repo.countCalls))

	ver, err := svc.RefreshStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, ver)

	repo.active = 9
	data, err := svc.Dashboard(ctx, testFilters())
	require.NoError(t, err)
	assert.Equal(t, 9, data.TotalEmployees)
	assert.EqualValues(t, 2, atomic.LoadInt32(&repo.countCalls))
}

func TestDashboardSharesConcurrentBuilds(t *testing.T) {
	repo := sampleRepo()
	repo.gate = make(chan struct{})
	svc := newTestService(t, repo)
	svc.cache = nil

	var wg sync.WaitGroup
	results := make(chan DashboardData, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := svc.Dashboard(context.Background(), testFilters())
			if err == nil {
				results <- data
			}
		}()
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&repo.countCalls) >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(repo.gate)
	wg.Wait()
	close(results)

	count := 0
	for data := range results {
		count++
		assert.Equal(t, 8, data.TotalEmployees)
	}
	assert.Equal(t, 3, count)
	assert.EqualValues(t, 1, atomic.LoadInt32(&repo.countCalls))
}

func TestDashboardPropagatesRepositoryError(t *testing.T) {
	repo := sampleRepo()
	repo.countErr = errors.New("connection reset")
	svc := newTestService(t, repo)

	_, err := svc.Dashboard(context.Background(), testFilters())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestDashboardHonoursCallerCancellation(t *testing.T) {
	repo := sampleRepo()
	repo.gate = make(chan struct{})
	defer close(repo.gate)
	svc := newTestService(t, repo)
	svc.cache = nil

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Dashboard(ctx, testFilters())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKPIUsesThirtyDayAttendanceWindow(t *testing.T) {
	repo := sampleRepo()
	svc := newTestService(t, repo)

	_, err := svc.Dashboard(context.Background(), testFilters())
	require.NoError(t, err)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, time.Date(2025, 2, 13, 9, 0, 0, 0, time.UTC), repo.lastSince)
}

func TestStatsReport(t *testing.T) {
	svc := newTestService(t, sampleRepo())
	dept := int64(1)
	filters := testFilters()
	filters.DepartmentID = &dept

	stats, err := svc.Stats(context.Background(), filters)
	require.NoError(t, err)
	assert.Equal(t, "HR Analytics - 2025-03-15", stats.Name)
	assert.Equal(t, "2025-03-01", stats.DateFrom)
	assert.Equal(t, "2025-03-15", stats.DateTo)
	assert.Equal(t, 2, stats.TotalInactiveEmployees)
	assert.Equal(t, 40_000_000.0, stats.TotalSalaryCost)
	assert.Equal(t, 4, stats.TotalLeaves)
	assert.Equal(t, 0.5, stats.AvgLeavesPerEmployee)
	assert.Equal(t, 24.0, stats.TotalWorkedHours)
	assert.Equal(t, 24.0, stats.AvgDailyHours)
	require.NotNil(t, stats.DepartmentID)
	assert.Equal(t, int64(1), *stats.DepartmentID)
}

func TestDepartmentsNeverNil(t *testing.T) {
	svc := newTestService(t, &mockRepo{})
	departments, err := svc.Departments(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, departments)
	assert.Empty(t, departments)
}

func TestCacheInvalidationBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan int64, 1)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(v int64) { got <- v }))

	_, err := cache.Version(ctx)
	require.NoError(t, err)
	ver, err := cache.Bump(ctx)
	require.NoError(t, err)

	select {
	case v := <-got:
		assert.Equal(t, ver, v)
	case <-time.After(time.Second):
		t.Fatal("expected bump notification")
	}
}

func TestStatsAverageIncludesZeroWageContracts(t *testing.T) {
	repo := sampleRepo()
	repo.wages = WageSummary{Count: 4, Open: 5, Total: 40_000_000}
	svc := newTestService(t, repo)

	stats, err := svc.Stats(context.Background(), testFilters())
	require.NoError(t, err)
	assert.Equal(t, 8_000_000.0, stats.AvgSalary)

	data, err := svc.Dashboard(context.Background(), testFilters())
	require.NoError(t, err)
	assert.Equal(t, 10_000_000.0, data.AvgSalary)
}
