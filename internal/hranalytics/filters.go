package hranalytics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultRangeDays is applied when a request omits either date.
	DefaultRangeDays = 30
	// MaxRangeDays bounds the width of a requested date range.
	MaxRangeDays = 365

	dateLayout = "2006-01-02"
)

var (
	// ErrInvalidFilter marks a filter value that cannot be used.
	ErrInvalidFilter = errors.New("hranalytics: invalid filter")
	// ErrDepartmentNotFound is returned when the filtered department does not exist.
	ErrDepartmentNotFound = fmt.Errorf("%w: department not found", ErrInvalidFilter)
)

// FilterError describes the offending filter field.
type FilterError struct {
	Field   string
	Message string
	Err     error
}

func (e FilterError) Error() string {
	return e.Message
}

// FieldName names the offending input.
func (e FilterError) FieldName() string {
	return e.Field
}

// Unwrap lets callers match ErrInvalidFilter.
func (e FilterError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidFilter
}

// DepartmentParam is a raw department filter. In JSON it may be a number,
// a string, null or false.
type DepartmentParam string

// UnmarshalJSON accepts every shape the dashboard clients send.
func (d *DepartmentParam) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		*d = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DepartmentParam(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("department_id: unsupported value %s", data)
	}
	*d = DepartmentParam(n.String())
	return nil
}

// FilterParams carries raw filter values as received from a client.
type FilterParams struct {
	DepartmentID DepartmentParam `json:"department_id" validate:"omitempty,numeric"`
	StartDate    string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate      string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

// DepartmentChecker confirms a department exists.
type DepartmentChecker interface {
	DepartmentExists(ctx context.Context, id int64) (bool, error)
}

var filterValidator = validator.New()

// ParseFilters validates raw params into Filters. Missing dates default to
// the DefaultRangeDays before now.
func ParseFilters(ctx context.Context, params FilterParams, now time.Time, departments DepartmentChecker) (Filters, error) {
	params.DepartmentID = DepartmentParam(NormaliseDepartment(string(params.DepartmentID)))
	params.StartDate = strings.TrimSpace(params.StartDate)
	params.EndDate = strings.TrimSpace(params.EndDate)

	if err := filterValidator.Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return Filters{}, fieldError(fieldErrs[0])
		}
		return Filters{}, err
	}

	var filters Filters
	if params.DepartmentID != "" {
		id, err := strconv.ParseInt(string(params.DepartmentID), 10, 64)
		if err != nil || id <= 0 {
			return Filters{}, FilterError{Field: "department_id", Message: fmt.Sprintf("Invalid department_id: %s", params.DepartmentID)}
		}
		if departments != nil {
			ok, err := departments.DepartmentExists(ctx, id)
			if err != nil {
				return Filters{}, fmt.Errorf("hranalytics: check department: %w", err)
			}
			if !ok {
				return Filters{}, FilterError{Field: "department_id", Message: fmt.Sprintf("Department %d does not exist", id), Err: ErrDepartmentNotFound}
			}
		}
		filters.DepartmentID = &id
	}

	if params.StartDate == "" || params.EndDate == "" {
		end := truncateDay(now)
		filters.StartDate = end.AddDate(0, 0, -DefaultRangeDays)
		filters.EndDate = end
		return filters, nil
	}

	start, _ := time.Parse(dateLayout, params.StartDate)
	end, _ := time.Parse(dateLayout, params.EndDate)
	if err := ValidateRange(start, end); err != nil {
		return Filters{}, err
	}
	filters.StartDate = start
	filters.EndDate = end
	return filters, nil
}

// ValidateRange enforces ordering and maximum width of a date range.
func ValidateRange(start, end time.Time) error {
	if start.After(end) {
		return FilterError{Field: "start_date", Message: "Start date cannot be after end date"}
	}
	if end.Sub(start) > MaxRangeDays*24*time.Hour {
		return FilterError{Field: "end_date", Message: fmt.Sprintf("Date range cannot exceed %d days", MaxRangeDays)}
	}
	return nil
}

// FormatDate renders a filter date the way clients send it.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD value.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, FilterError{Field: "date", Message: "Invalid date format. Use YYYY-MM-DD"}
	}
	return t, nil
}

// NormaliseDepartment maps the "no department" spellings to "".
func NormaliseDepartment(raw string) string {
	value := strings.TrimSpace(raw)
	switch strings.ToLower(value) {
	case "", "null", "false", "undefined":
		return ""
	}
	return value
}

func fieldError(fe validator.FieldError) FilterError {
	switch fe.Field() {
	case "DepartmentID":
		return FilterError{Field: "department_id", Message: fmt.Sprintf("Invalid department_id: %v", fe.Value())}
	case "StartDate":
		return FilterError{Field: "start_date", Message: "Invalid date format. Use YYYY-MM-DD"}
	default:
		return FilterError{Field: "end_date", Message: "Invalid date format. Use YYYY-MM-DD"}
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
