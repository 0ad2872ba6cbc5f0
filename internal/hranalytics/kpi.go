package hranalytics

import (
	"fmt"
	"math"
	"sort"
)

// KPI scoring constants.
const (
	KPIBaseScore        = 100.0
	KPILeavePenalty     = 3
	KPIMaxLeavePenalty  = 30
	KPIWorkingDays      = 22
	KPIAttendanceWindow = 30
)

// EmployeeActivity holds the inputs of a single employee KPI score.
type EmployeeActivity struct {
	EmployeeID     int64
	LeavesYTD      int
	AttendanceDays int
}

// Score computes the KPI score: leave usage is penalised, then the score is
// scaled by attendance consistency over the last KPIAttendanceWindow days.
func (a EmployeeActivity) Score() float64 {
	score := KPIBaseScore
	penalty := a.LeavesYTD * KPILeavePenalty
	if penalty > KPIMaxLeavePenalty {
		penalty = KPIMaxLeavePenalty
	}
	score -= float64(penalty)
	if a.AttendanceDays > 0 {
		score *= float64(a.AttendanceDays) / KPIWorkingDays
	}
	return math.Max(0, math.Min(KPIBaseScore, score))
}

// KPISummary is the average score and its histogram.
type KPISummary struct {
	Average      float64
	Distribution []KPIBucket
}

// SummariseKPI scores every employee and buckets the results by ten points.
func SummariseKPI(activity []EmployeeActivity) KPISummary {
	if len(activity) == 0 {
		return KPISummary{Distribution: []KPIBucket{}}
	}
	hist := make(map[int]int)
	total := 0.0
	for _, a := range activity {
		score := a.Score()
		total += score
		hist[int(score/10)*10]++
	}
	buckets := make([]int, 0, len(hist))
	for b := range hist {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	dist := make([]KPIBucket, 0, len(buckets))
	for _, b := range buckets {
		dist = append(dist, KPIBucket{ScoreRange: fmt.Sprintf("%d-%d", b, b+9), Count: hist[b]})
	}
	return KPISummary{Average: total / float64(len(activity)), Distribution: dist}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
