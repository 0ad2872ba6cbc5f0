package hranalytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository exposes the HR queries the service relies on.
type Repository interface {
	DepartmentExists(ctx context.Context, id int64) (bool, error)
	ListDepartments(ctx context.Context) ([]Department, error)
	CountEmployees(ctx context.Context, departmentID *int64) (active int, inactive int, err error)
	OpenContractWages(ctx context.Context, departmentID *int64) (WageSummary, error)
	EmployeeActivity(ctx context.Context, departmentID *int64, yearStart, yearEnd, since time.Time) ([]EmployeeActivity, error)
	AttendanceByDay(ctx context.Context, departmentID *int64, from, to time.Time) ([]AttendanceDay, error)
	SalaryByDepartment(ctx context.Context, departmentID *int64) ([]SalaryRow, error)
	LeavesByMonth(ctx context.Context, departmentID *int64, from, to time.Time) ([]LeavePoint, error)
}

// WageSummary aggregates open contract wages. Count covers contracts with
// a wage set; Open covers every open contract.
type WageSummary struct {
	Count int
	Open  int
	Total float64
}

// AttendanceDay aggregates attendance rows for one calendar day.
type AttendanceDay struct {
	Day        time.Time
	Rows       int
	TotalHours float64
	AvgHours   float64
}

// PGRepository implements Repository on the HR tables.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// DepartmentExists reports whether hr_department holds the id.
func (r *PGRepository) DepartmentExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hr_department WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, wrapQuery("department exists", err)
	}
	return exists, nil
}

// ListDepartments returns every department ordered by name.
func (r *PGRepository) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM hr_department ORDER BY name, id`)
	if err != nil {
		return nil, wrapQuery("list departments", err)
	}
	departments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Department, error) {
		var d Department
		err := row.Scan(&d.ID, &d.Name)
		return d, err
	})
	if err != nil {
		return nil, wrapQuery("scan departments", err)
	}
	return departments, nil
}

// CountEmployees counts active and archived employees.
func (r *PGRepository) CountEmployees(ctx context.Context, departmentID *int64) (int, int, error) {
	const query = `
SELECT
	COUNT(*) FILTER (WHERE e.active),
	COUNT(*) FILTER (WHERE NOT e.active)
FROM hr_employee e
WHERE ($1::bigint IS NULL OR e.department_id = $1)`
	var active, inactive int
	if err := r.pool.QueryRow(ctx, query, optionalDepartment(departmentID)).Scan(&active, &inactive); err != nil {
		return 0, 0, wrapQuery("count employees", err)
	}
	return active, inactive, nil
}

// OpenContractWages sums wages of running contracts.
func (r *PGRepository) OpenContractWages(ctx context.Context, departmentID *int64) (WageSummary, error) {
	const query = `
SELECT
  COUNT(c.id) FILTER (WHERE c.wage > 0),
  COUNT(c.id),
  COALESCE(SUM(c.wage), 0)::float8
FROM hr_contract c
JOIN hr_employee e ON e.id = c.employee_id
WHERE c.state = 'open'
  AND ($1::bigint IS NULL OR e.department_id = $1)`
	var summary WageSummary
	if err := r.pool.QueryRow(ctx, query, optionalDepartment(departmentID)).Scan(&summary.Count, &summary.Open, &summary.Total); err != nil {
		return WageSummary{}, wrapQuery("open contract wages", err)
	}
	return summary, nil
}

// EmployeeActivity collects KPI inputs for each active employee.
func (r *PGRepository) EmployeeActivity(ctx context.Context, departmentID *int64, yearStart, yearEnd, since time.Time) ([]EmployeeActivity, error) {
	const query = `
SELECT
	e.id,
	(SELECT COUNT(*) FROM hr_leave l
	  WHERE l.employee_id = e.id AND l.state = 'validate'
	    AND l.request_date_from BETWEEN $2 AND $3)::int,
	(SELECT COUNT(DISTINCT a.check_in::date) FROM hr_attendance a
	  WHERE a.employee_id = e.id AND a.check_in >= $4)::int
FROM hr_employee e
WHERE e.active
  AND ($1::bigint IS NULL OR e.department_id = $1)
ORDER BY e.id`
	rows, err := r.pool.Query(ctx, query, optionalDepartment(departmentID), dateParam(yearStart), dateParam(yearEnd), since)
	if err != nil {
		return nil, wrapQuery("employee activity", err)
	}
	activity, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EmployeeActivity, error) {
		var a EmployeeActivity
		err := row.Scan(&a.EmployeeID, &a.LeavesYTD, &a.AttendanceDays)
		return a, err
	})
	if err != nil {
		return nil, wrapQuery("scan employee activity", err)
	}
	return activity, nil
}

// AttendanceByDay groups positive worked hours by check-in day.
func (r *PGRepository) AttendanceByDay(ctx context.Context, departmentID *int64, from, to time.Time) ([]AttendanceDay, error) {
	const query = `
SELECT a.check_in::date AS day, COUNT(*), SUM(a.worked_hours)::float8, AVG(a.worked_hours)::float8
FROM hr_attendance a
JOIN hr_employee e ON e.id = a.employee_id
WHERE a.check_in >= $2
  AND a.check_in < $3::date + 1
  AND a.worked_hours > 0
  AND ($1::bigint IS NULL OR e.department_id = $1)
GROUP BY day
ORDER BY day`
	rows, err := r.pool.Query(ctx, query, optionalDepartment(departmentID), dateParam(from), dateParam(to))
	if err != nil {
		return nil, wrapQuery("attendance by day", err)
	}
	days, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AttendanceDay, error) {
		var (
			d   AttendanceDay
			day pgtype.Date
		)
		err := row.Scan(&day, &d.Rows, &d.TotalHours, &d.AvgHours)
		d.Day = day.Time
		return d, err
	})
	if err != nil {
		return nil, wrapQuery("scan attendance", err)
	}
	return days, nil
}

// SalaryByDepartment sums open contract wages per department name.
func (r *PGRepository) SalaryByDepartment(ctx context.Context, departmentID *int64) ([]SalaryRow, error) {
	const query = `
SELECT d.name, COALESCE(SUM(c.wage), 0)::float8
FROM hr_contract c
JOIN hr_employee e ON e.id = c.employee_id
JOIN hr_department d ON d.id = e.department_id
WHERE c.state = 'open'
  AND ($1::bigint IS NULL OR e.department_id = $1)
GROUP BY d.name
ORDER BY d.name`
	rows, err := r.pool.Query(ctx, query, optionalDepartment(departmentID))
	if err != nil {
		return nil, wrapQuery("salary by department", err)
	}
	salaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (SalaryRow, error) {
		var s SalaryRow
		err := row.Scan(&s.Department, &s.TotalSalary)
		return s, err
	})
	if err != nil {
		return nil, wrapQuery("scan salaries", err)
	}
	return salaries, nil
}

// LeavesByMonth counts validated leaves per starting month.
func (r *PGRepository) LeavesByMonth(ctx context.Context, departmentID *int64, from, to time.Time) ([]LeavePoint, error) {
	const query = `
SELECT to_char(l.request_date_from, 'YYYY-MM') AS month, COUNT(*)::int
FROM hr_leave l
JOIN hr_employee e ON e.id = l.employee_id
WHERE l.state = 'validate'
  AND l.request_date_from BETWEEN $2 AND $3
  AND ($1::bigint IS NULL OR e.department_id = $1)
GROUP BY month
ORDER BY month`
	rows, err := r.pool.Query(ctx, query, optionalDepartment(departmentID), dateParam(from), dateParam(to))
	if err != nil {
		return nil, wrapQuery("leaves by month", err)
	}
	leaves, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (LeavePoint, error) {
		var p LeavePoint
		err := row.Scan(&p.Month, &p.Count)
		return p, err
	})
	if err != nil {
		return nil, wrapQuery("scan leaves", err)
	}
	return leaves, nil
}

func optionalDepartment(departmentID *int64) pgtype.Int8 {
	if departmentID == nil {
		return pgtype.Int8{Valid: false}
	}
	return pgtype.Int8{Int64: *departmentID, Valid: true}
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// wrapQuery annotates query failures, surfacing the SQLSTATE when the server
// rejected the statement.
func wrapQuery(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("hranalytics: %s: %s (%s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("hranalytics: %s: %w", op, err)
}
