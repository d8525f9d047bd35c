package user

type Permission string

const (
	// Payroll
	PermissionPayrollView    Permission = "payroll.view"    // periods, lines, aggregates, history, exports
	PermissionPayrollManage  Permission = "payroll.manage"  // create, delete, calculate, adjust, preview
	PermissionPayrollApprove Permission = "payroll.approve" // approve and void
	PermissionPayrollPay     Permission = "payroll.pay"     // mark as paid
)

// RolePermissions maps roles to their permissions
var RolePermissions = map[Role][]Permission{
	RoleOwner: {
		// Owner has all permissions
		PermissionPayrollView,
		PermissionPayrollManage,
		PermissionPayrollApprove,
		PermissionPayrollPay,
	},
	RoleManager: {
		PermissionPayrollView,
		PermissionPayrollManage,
		PermissionPayrollApprove,
	},
	RoleEmployee: {
		// Own payslips are served by the employee portal
	},
	RolePending: {
		// Pending role has no permissions
	},
}

// HasPermission checks if a role has a specific permission
func HasPermission(role Role, permission Permission) bool {
	permissions, exists := RolePermissions[role]
	if !exists {
		return false
	}
	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}
