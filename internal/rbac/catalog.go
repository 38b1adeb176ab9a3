package rbac

import "strings"

// Resource identifies a protected noun. The set is closed; extending it means
// editing the catalog below.
type Resource string

const (
	ResourceProjects   Resource = "projects"
	ResourceTestSuites Resource = "test_suites"
	ResourceTestCases  Resource = "test_cases"
	ResourceExecutions Resource = "executions"
	ResourceReports    Resource = "reports"
	ResourceUsers      Resource = "users"
	ResourceSettings   Resource = "settings"
)

// Action identifies an operation on a resource. Not every action is valid for
// every resource; IsValidAction consults the catalog.
type Action string

const (
	ActionCreate            Action = "create"
	ActionRead              Action = "read"
	ActionUpdate            Action = "update"
	ActionDelete            Action = "delete"
	ActionManage            Action = "manage"
	ActionExecute           Action = "execute"
	ActionExport            Action = "export"
	ActionManagePermissions Action = "manage_permissions"
)

// Permission is a (resource, action) pair. Its wire form is "resource.action".
type Permission struct {
	Resource Resource
	Action   Action
}

// Key returns the canonical "resource.action" form used across the system.
func (p Permission) Key() string {
	return string(p.Resource) + "." + string(p.Action)
}

// ParsePermission splits a "resource.action" key. It does not require the pair
// to be catalog-valid; callers that care must check IsValidAction.
func ParsePermission(key string) (Permission, bool) {
	idx := strings.IndexByte(key, '.')
	if idx <= 0 || idx == len(key)-1 {
		return Permission{}, false
	}
	return Permission{Resource: Resource(key[:idx]), Action: Action(key[idx+1:])}, true
}

// catalog is the compiled-in table of which actions exist for which resource.
// Grant tables may only reference pairs listed here; anything else resolves to
// denied no matter which role asks.
var catalog = map[Resource][]Action{
	ResourceProjects:   {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage},
	ResourceTestSuites: {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionExport},
	ResourceTestCases:  {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute, ActionExport},
	ResourceExecutions: {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute, ActionExport},
	ResourceReports:    {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport},
	ResourceUsers:      {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionManagePermissions},
	ResourceSettings:   {ActionRead, ActionUpdate, ActionManage},
}

// IsValidAction reports whether the catalog lists action for resource.
func IsValidAction(resource Resource, action Action) bool {
	for _, a := range catalog[resource] {
		if a == action {
			return true
		}
	}
	return false
}

// CatalogPermissions returns every catalog-valid permission. The slice is
// freshly allocated on each call so callers may reorder it freely.
func CatalogPermissions() []Permission {
	var perms []Permission
	for resource, actions := range catalog {
		for _, action := range actions {
			perms = append(perms, Permission{Resource: resource, Action: action})
		}
	}
	return perms
}
