package auth

const (
	PermElevationView   = "elevation.view"
	PermElevationManage = "elevation.manage"
	PermScheduleView    = "schedule.view"
	PermScheduleAdjust  = "schedule.adjust"
	PermAdminSweep      = "admin.sweep"
)

// Permission describes a permission key granted through role_permissions.
type Permission struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

var BuiltinPermissions = []Permission{
	{Key: PermElevationView, Description: "View elevation grants and statistics"},
	{Key: PermElevationManage, Description: "Create, update, cancel and finalize elevation grants"},
	{Key: PermScheduleView, Description: "View schedule adjustments and projected due dates"},
	{Key: PermScheduleAdjust, Description: "Skip or move loan repayment dates"},
	{Key: PermAdminSweep, Description: "Trigger the elevation expiry sweep"},
}
