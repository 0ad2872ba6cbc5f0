package shared

// PermPermissionsView gates the permission matrix page.
const PermPermissionsView = "permissions.view"

// AllScopes lists every permission the dashboard checks.
func AllScopes() []string {
	return append([]string{PermPermissionsView}, HRAnalyticsScopes()...)
}
