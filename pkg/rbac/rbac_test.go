package rbac

import (
	"errors"
	"testing"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleStaff, PermissionWriteLead, true},
		{RoleStaff, PermissionMoveBoard, true},
		{RoleStaff, PermissionDeleteLead, false},
		{RoleStaff, PermissionForceLeadStatus, false},
		{RoleAdmin, PermissionDeleteLead, true},
		{RoleAdmin, PermissionReadLead, true},
		{RoleAdmin, PermissionReplayOutbox, true},
		{"guest", PermissionReadLead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.permission); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
		}
	}
}

func TestCheckPermissionError(t *testing.T) {
	err := CheckPermission(RoleStaff, PermissionDeleteProject)
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}
	if denied.Role != RoleStaff || denied.Permission != PermissionDeleteProject {
		t.Fatalf("denied = %+v", denied)
	}
	if err := CheckPermission(RoleAdmin, PermissionDeleteProject); err != nil {
		t.Fatalf("admin should be allowed: %v", err)
	}
}

func TestStaffPermissionsNotAliased(t *testing.T) {
	if HasPermission(RoleStaff, PermissionRecomputeRevenue) {
		t.Fatal("admin-only permissions leaked into the staff role")
	}
}
