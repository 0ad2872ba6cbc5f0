package hranalytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmployeeActivityScore(t *testing.T) {
	cases := []struct {
		name     string
		activity EmployeeActivity
		want     float64
	}{
		{"no activity", EmployeeActivity{}, 100},
		{"leave penalty", EmployeeActivity{LeavesYTD: 4}, 88},
		{"penalty capped", EmployeeActivity{LeavesYTD: 25}, 70},
		{"partial attendance", EmployeeActivity{AttendanceDays: 11}, 50},
		{"overtime clamps", EmployeeActivity{AttendanceDays: 30}, 100},
		{"combined", EmployeeActivity{LeavesYTD: 10, AttendanceDays: 11}, 35},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, tc.activity.Score(), 0.0001)
		})
	}
}

func TestSummariseKPIBuckets(t *testing.T) {
	summary := SummariseKPI([]EmployeeActivity{
		{EmployeeID: 1, AttendanceDays: 11},
		{EmployeeID: 2, AttendanceDays: 12},
		{EmployeeID: 3, LeavesYTD: 1},
	})
	assert.Equal(t, []KPIBucket{
		{ScoreRange: "50-59", Count: 2},
		{ScoreRange: "90-99", Count: 1},
	}, summary.Distribution)
	assert.InDelta(t, (50+54.5454+97)/3.0, summary.Average, 0.001)
}

func TestSummariseKPIEmpty(t *testing.T) {
	summary := SummariseKPI(nil)
	assert.Zero(t, summary.Average)
	assert.NotNil(t, summary.Distribution)
	assert.Empty(t, summary.Distribution)
}
