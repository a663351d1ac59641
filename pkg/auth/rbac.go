package auth

import "github.com/roosthq/roost/pkg/types"

// Permission is a flat action string checked against the role matrix
type Permission string

const (
	PermUsersRead   Permission = "users:read"
	PermUsersWrite  Permission = "users:write"
	PermUsersDelete Permission = "users:delete"

	PermTeamsRead  Permission = "teams:read"
	PermTeamsWrite Permission = "teams:write"

	PermApiKeysManage Permission = "api-keys:manage"

	PermInstancesRead      Permission = "instances:read"
	PermInstancesDeploy    Permission = "instances:deploy"
	PermInstancesUpdate    Permission = "instances:update"
	PermInstancesLifecycle Permission = "instances:lifecycle"
	PermInstancesDestroy   Permission = "instances:destroy"
	PermInstancesDelete    Permission = "instances:delete"
	PermInstancesExecute   Permission = "instances:execute"
	PermInstancesConnect   Permission = "instances:connect"

	PermExtensionsRead    Permission = "extensions:read"
	PermExtensionsInstall Permission = "extensions:install"
	PermExtensionsRemove  Permission = "extensions:remove"

	PermMetricsRead Permission = "metrics:read"

	PermAlertsRead  Permission = "alerts:read"
	PermAlertsWrite Permission = "alerts:write"

	PermBudgetsRead  Permission = "budgets:read"
	PermBudgetsWrite Permission = "budgets:write"

	PermTasksRead  Permission = "tasks:read"
	PermTasksWrite Permission = "tasks:write"

	PermDriftRead  Permission = "drift:read"
	PermDriftWrite Permission = "drift:write"

	PermSecurityRead  Permission = "security:read"
	PermSecurityWrite Permission = "security:write"

	PermTemplatesRead  Permission = "templates:read"
	PermTemplatesWrite Permission = "templates:write"

	PermAuditRead Permission = "audit:read"
)

// readOnly is the permission set shared by every role
var readOnly = []Permission{
	PermUsersRead,
	PermTeamsRead,
	PermInstancesRead,
	PermExtensionsRead,
	PermMetricsRead,
	PermAlertsRead,
	PermBudgetsRead,
	PermTasksRead,
	PermDriftRead,
	PermSecurityRead,
	PermTemplatesRead,
}

// rolePermissions is the fixed role matrix. ADMIN is handled in
// CanPerform and has every permission.
var rolePermissions = map[types.Role][]Permission{
	types.RoleViewer: readOnly,
	types.RoleDeveloper: append(readOnly[:len(readOnly):len(readOnly)],
		PermInstancesUpdate,
		PermInstancesExecute,
		PermInstancesConnect,
		PermExtensionsInstall,
		PermApiKeysManage,
	),
	types.RoleOperator: append(readOnly[:len(readOnly):len(readOnly)],
		PermInstancesDeploy,
		PermInstancesUpdate,
		PermInstancesLifecycle,
		PermInstancesDestroy,
		PermInstancesExecute,
		PermInstancesConnect,
		PermExtensionsInstall,
		PermExtensionsRemove,
		PermAlertsWrite,
		PermBudgetsWrite,
		PermTasksWrite,
		PermDriftWrite,
		PermSecurityWrite,
		PermApiKeysManage,
		PermAuditRead,
	),
}

// CanPerform reports whether a role holds a permission. ADMIN bypasses
// the matrix and holds everything.
func CanPerform(role types.Role, perm Permission) bool {
	if role == types.RoleAdmin {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
