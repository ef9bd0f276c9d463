package rbac

import (
	"fmt"
	"slices"
)

// 权限常量
const (
	PermissionReadLead        = "lead:read"
	PermissionWriteLead       = "lead:write"
	PermissionDeleteLead      = "lead:delete"
	PermissionForceLeadStatus = "lead:force_status"

	PermissionReadProject   = "project:read"
	PermissionWriteProject  = "project:write"
	PermissionDeleteProject = "project:delete"
	PermissionMoveBoard     = "board:move"

	PermissionRecomputeRevenue  = "revenue:recompute"
	PermissionWriteNotification = "notification:write"
	PermissionReplayOutbox      = "outbox:replay"
)

// 角色常量
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

var staffPermissions = []string{
	PermissionReadLead,
	PermissionWriteLead,
	PermissionReadProject,
	PermissionWriteProject,
	PermissionMoveBoard,
	PermissionWriteNotification,
}

// 角色权限映射；admin 在 staff 之上增加删除、强制改状态等敏感操作
var rolePermissions = map[string][]string{
	RoleStaff: staffPermissions,
	RoleAdmin: append(slices.Clone(staffPermissions),
		PermissionDeleteLead,
		PermissionForceLeadStatus,
		PermissionDeleteProject,
		PermissionRecomputeRevenue,
		PermissionReplayOutbox,
	),
}

// ValidRole 角色是否已知
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	return slices.Contains(rolePermissions[role], permission)
}

// CheckPermission 与 HasPermission 相同，但返回错误便于 handler 处理
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{Role: role, Permission: permission}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Permission)
}
