package shared

// HR analytics permissions for RBAC enforcement.
const (
	PermHRAnalyticsView   = "hr_analytics.view"
	PermHRAnalyticsExport = "hr_analytics.export"
	PermHRAnalyticsManage = "hr_analytics.manage"
)

// HRAnalyticsScopes returns permissions needed for the HR dashboard.
func HRAnalyticsScopes() []string {
	return []string{
		PermHRAnalyticsView,
		PermHRAnalyticsExport,
		PermHRAnalyticsManage,
	}
}
