package dashboard

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/hr-analytics/internal/hranalytics"
	"github.com/odyssey-erp/hr-analytics/internal/notify"
)

// DefaultInterval is the auto-refresh period.
const DefaultInterval = 30 * time.Second

// User facing messages.
const (
	MsgLoadFailed     = "Could not load dashboard data"
	MsgRefreshing     = "Refreshing data..."
	MsgAutoDisabled   = "Auto refresh disabled"
	MsgExported       = "PDF exported successfully"
	MsgExportFailed   = "PDF export failed: "
	MsgRangeReversed  = "Start date must be on or before end date"
	msgAutoEnabledFmt = "Auto refresh enabled (%ds)"
)

// State is everything a live dashboard knows about itself.
type State struct {
	Filters      hranalytics.Filters
	IsLoading    bool
	IsRefreshing bool
	LastUpdated  time.Time
	AutoRefresh  bool
	Interval     time.Duration
	Error        string
	Data         *hranalytics.DashboardData
	// Seq tags the latest issued load. Results carrying an older tag are
	// discarded.
	Seq uint64
}

// NewState covers the first day of the month through today with
// auto-refresh on. Use WithFilters to start from another scope.
func NewState(now time.Time, interval time.Duration) State {
	if interval <= 0 {
		interval = DefaultInterval
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return State{
		Filters: hranalytics.Filters{
			StartDate: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC),
			EndDate:   today,
		},
		AutoRefresh: true,
		Interval:    interval,
	}
}

// WithFilters returns s scoped to f.
func (s State) WithFilters(f hranalytics.Filters) State {
	f.DepartmentID = copyID(f.DepartmentID)
	s.Filters = f
	return s
}

// Busy reports whether a load is in flight.
func (s State) Busy() bool {
	return s.IsLoading || s.IsRefreshing
}

// Action is an input to Reduce.
type Action interface {
	isAction()
}

// SetDepartment scopes the dashboard to one department; nil clears it.
type SetDepartment struct{ ID *int64 }

// SetStartDate moves the start of the range.
type SetStartDate struct{ Date time.Time }

// SetEndDate moves the end of the range.
type SetEndDate struct{ Date time.Time }

// ToggleAutoRefresh flips periodic reloading.
type ToggleAutoRefresh struct{}

// RequestRefresh is a manual refresh.
type RequestRefresh struct{}

// Invalidate asks for a silent reload after the server side cache moved.
type Invalidate struct{}

// LoadStarted tags a new load with the next sequence number.
type LoadStarted struct{}

// LoadSucceeded carries a settled fetch.
type LoadSucceeded struct {
	Seq  uint64
	Data hranalytics.DashboardData
	At   time.Time
}

// LoadFailed carries a failed fetch.
type LoadFailed struct {
	Seq uint64
	Err error
}

func (SetDepartment) isAction()     {}
func (SetStartDate) isAction()      {}
func (SetEndDate) isAction()        {}
func (ToggleAutoRefresh) isAction() {}
func (RequestRefresh) isAction()    {}
func (Invalidate) isAction()        {}
func (LoadStarted) isAction()       {}
func (LoadSucceeded) isAction()     {}
func (LoadFailed) isAction()        {}

// Toast is a notification requested by a transition.
type Toast struct {
	Kind    notify.Kind
	Message string
}

// Effects lists the side effects a transition asks for.
type Effects struct {
	Reload       bool
	RestartTimer bool
	StopTimer    bool
	Toast        *Toast
	// Discarded marks a load result dropped by the sequence fence.
	Discarded bool
	// Changed is set when the state differs from the input.
	Changed bool
	// Rendered is set when Data was replaced and charts need drawing.
	Rendered bool
}

// Reduce applies a to s. It is pure: every side effect is described in the
// returned Effects for the caller to run.
func Reduce(s State, a Action) (State, Effects) {
	switch a := a.(type) {
	case SetDepartment:
		if sameDepartment(s.Filters.DepartmentID, a.ID) {
			return s, Effects{}
		}
		s.Filters.DepartmentID = copyID(a.ID)
		return s, filterChanged()

	case SetStartDate:
		if a.Date.Equal(s.Filters.StartDate) {
			return s, Effects{}
		}
		if msg := rangeProblem(a.Date, s.Filters.EndDate); msg != "" {
			return s, rangeRejected(msg)
		}
		s.Filters.StartDate = a.Date
		return s, filterChanged()

	case SetEndDate:
		if a.Date.Equal(s.Filters.EndDate) {
			return s, Effects{}
		}
		if msg := rangeProblem(s.Filters.StartDate, a.Date); msg != "" {
			return s, rangeRejected(msg)
		}
		s.Filters.EndDate = a.Date
		return s, filterChanged()

	case ToggleAutoRefresh:
		s.AutoRefresh = !s.AutoRefresh
		if s.AutoRefresh {
			msg := fmt.Sprintf(msgAutoEnabledFmt, int(s.Interval/time.Second))
			return s, Effects{RestartTimer: true, Changed: true, Toast: &Toast{Kind: notify.KindSuccess, Message: msg}}
		}
		return s, Effects{StopTimer: true, Changed: true, Toast: &Toast{Kind: notify.KindInfo, Message: MsgAutoDisabled}}

	case RequestRefresh:
		if s.Busy() {
			return s, Effects{}
		}
		return s, Effects{Reload: true, Toast: &Toast{Kind: notify.KindInfo, Message: MsgRefreshing}}

	case Invalidate:
		if s.Busy() {
			return s, Effects{}
		}
		return s, Effects{Reload: true}

	case LoadStarted:
		s.Seq++
		first := s.LastUpdated.IsZero()
		s.IsLoading = first
		s.IsRefreshing = !first
		return s, Effects{Changed: true}

	case LoadSucceeded:
		if a.Seq != s.Seq {
			return s, Effects{Discarded: true}
		}
		data := a.Data
		s.Data = &data
		s.Error = ""
		s.LastUpdated = a.At
		s.IsLoading, s.IsRefreshing = false, false
		return s, Effects{Changed: true, Rendered: true}

	case LoadFailed:
		if a.Seq != s.Seq {
			return s, Effects{Discarded: true}
		}
		s.Error = MsgLoadFailed
		s.IsLoading, s.IsRefreshing = false, false
		return s, Effects{Changed: true, Toast: &Toast{Kind: notify.KindError, Message: MsgLoadFailed}}
	}
	return s, Effects{}
}

func filterChanged() Effects {
	return Effects{Reload: true, RestartTimer: true, Changed: true}
}

func rangeRejected(msg string) Effects {
	return Effects{Toast: &Toast{Kind: notify.KindError, Message: msg}}
}

// rangeProblem returns the toast text for an unusable range, or "".
func rangeProblem(start, end time.Time) string {
	if start.After(end) {
		return MsgRangeReversed
	}
	if err := hranalytics.ValidateRange(start, end); err != nil {
		return err.Error()
	}
	return ""
}

func sameDepartment(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// Snapshot is the wire form of State sent to the browser.
type Snapshot struct {
	DepartmentID *int64 `json:"department_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	IsLoading    bool   `json:"is_loading"`
	IsRefreshing bool   `json:"is_refreshing"`
	AutoRefresh  bool   `json:"auto_refresh"`
	LastUpdated  string `json:"last_updated,omitempty"`
	Error        string `json:"error,omitempty"`
	HasData      bool   `json:"has_data"`
}

// Snapshot renders s for the browser.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		DepartmentID: s.Filters.DepartmentID,
		StartDate:    hranalytics.FormatDate(s.Filters.StartDate),
		EndDate:      hranalytics.FormatDate(s.Filters.EndDate),
		IsLoading:    s.IsLoading,
		IsRefreshing: s.IsRefreshing,
		AutoRefresh:  s.AutoRefresh,
		Error:        s.Error,
		HasData:      s.Data != nil,
	}
	if !s.LastUpdated.IsZero() {
		snap.LastUpdated = s.LastUpdated.Format(time.RFC3339)
	}
	return snap
}
