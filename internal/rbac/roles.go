package rbac

import (
	"fmt"
	"strings"
	"sync"
)

// GlobalRole is the platform-wide role every user carries exactly one of.
type GlobalRole string

const (
	GlobalRoleAdmin      GlobalRole = "admin"
	GlobalRoleManager    GlobalRole = "manager"
	GlobalRoleQAEngineer GlobalRole = "qa_engineer"
	GlobalRoleTester     GlobalRole = "tester"
	GlobalRoleDeveloper  GlobalRole = "developer"
	GlobalRoleViewer     GlobalRole = "viewer"
)

// ProjectRole is scoped to a single project and only ever adds capability
// within that project.
type ProjectRole string

const (
	ProjectRoleOwner       ProjectRole = "owner"
	ProjectRoleMaintainer  ProjectRole = "maintainer"
	ProjectRoleContributor ProjectRole = "contributor"
	ProjectRoleViewer      ProjectRole = "viewer"

	// ProjectRoleNone marks the absence of a project context.
	ProjectRoleNone ProjectRole = ""
)

// RoleInfo carries presentation metadata for a role. It is not part of the
// authorization contract.
type RoleInfo struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Valid reports whether g is one of the six known global roles.
func (g GlobalRole) Valid() bool {
	_, ok := globalRoleInfo[g]
	return ok
}

// Valid reports whether p is one of the four known project roles.
func (p ProjectRole) Valid() bool {
	_, ok := projectRoleInfo[p]
	return ok
}

// ParseGlobalRole normalizes and validates a global role value.
func ParseGlobalRole(raw string) (GlobalRole, error) {
	role := GlobalRole(strings.TrimSpace(strings.ToLower(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown global role %q", raw)
	}
	return role, nil
}

// ParseProjectRole normalizes and validates a project role value.
func ParseProjectRole(raw string) (ProjectRole, error) {
	role := ProjectRole(strings.TrimSpace(strings.ToLower(raw)))
	if role == ProjectRoleNone || !role.Valid() {
		return "", fmt.Errorf("unknown project role %q", raw)
	}
	return role, nil
}

var globalRoleInfo = map[GlobalRole]RoleInfo{
	GlobalRoleAdmin:      {Label: "Administrator", Description: "Full access to every resource, including user and permission management."},
	GlobalRoleManager:    {Label: "Manager", Description: "Manages projects, people and reporting across the platform."},
	GlobalRoleQAEngineer: {Label: "QA Engineer", Description: "Designs suites and cases, runs and maintains executions."},
	GlobalRoleTester:     {Label: "Tester", Description: "Executes test cases and records results."},
	GlobalRoleDeveloper:  {Label: "Developer", Description: "Reads QA assets and updates cases tied to their changes."},
	GlobalRoleViewer:     {Label: "Viewer", Description: "Read-only access to the platform."},
}

var projectRoleInfo = map[ProjectRole]RoleInfo{
	ProjectRoleOwner:       {Label: "Project Owner", Description: "Full control over the project's QA assets."},
	ProjectRoleMaintainer:  {Label: "Maintainer", Description: "Curates suites and executions for the project."},
	ProjectRoleContributor: {Label: "Contributor", Description: "Adds and runs test cases within the project."},
	ProjectRoleViewer:      {Label: "Project Viewer", Description: "Read-only access to the project."},
}

// GlobalRoleInfo returns presentation metadata for a global role.
func GlobalRoleInfo(role GlobalRole) (RoleInfo, bool) {
	info, ok := globalRoleInfo[role]
	return info, ok
}

// ProjectRoleInfo returns presentation metadata for a project role.
func ProjectRoleInfo(role ProjectRole) (RoleInfo, bool) {
	info, ok := projectRoleInfo[role]
	return info, ok
}

var (
	grantsOnce        sync.Once
	globalRoleGrants  map[GlobalRole]PermissionSet
	projectRoleGrants map[ProjectRole]PermissionSet
)

// grantTables builds both grant tables exactly once. The tables are never
// mutated after construction; callers receive them read-only.
func grantTables() (map[GlobalRole]PermissionSet, map[ProjectRole]PermissionSet) {
	grantsOnce.Do(func() {
		globalRoleGrants = buildGlobalGrants()
		projectRoleGrants = buildProjectGrants()
	})
	return globalRoleGrants, projectRoleGrants
}

func buildGlobalGrants() map[GlobalRole]PermissionSet {
	admin := NewPermissionSet(CatalogPermissions()...)

	manager := NewPermissionSet(
		grant(ResourceProjects, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage)...)
	manager.add(grant(ResourceTestSuites, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionManage, ActionExport)...)
	manager.add(grant(ResourceTestCases, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport)...)
	manager.add(grant(ResourceExecutions, ActionRead, ActionExport)...)
	manager.add(grant(ResourceReports, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport)...)
	manager.add(grant(ResourceUsers, ActionCreate, ActionRead, ActionUpdate, ActionManagePermissions)...)
	manager.add(grant(ResourceSettings, ActionRead)...)

	qaEngineer := NewPermissionSet(grant(ResourceProjects, ActionRead)...)
	qaEngineer.add(grant(ResourceTestSuites, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExport)...)
	qaEngineer.add(grant(ResourceTestCases, ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute, ActionExport)...)
	qaEngineer.add(grant(ResourceExecutions, ActionCreate, ActionRead, ActionUpdate, ActionExecute, ActionExport)...)
	qaEngineer.add(grant(ResourceReports, ActionCreate, ActionRead, ActionExport)...)

	tester := NewPermissionSet(grant(ResourceProjects, ActionRead)...)
	tester.add(grant(ResourceTestSuites, ActionRead)...)
	tester.add(grant(ResourceTestCases, ActionRead, ActionExecute)...)
	tester.add(grant(ResourceExecutions, ActionCreate, ActionRead, ActionExecute)...)
	tester.add(grant(ResourceReports, ActionRead)...)

	developer := NewPermissionSet(grant(ResourceProjects, ActionRead)...)
	developer.add(grant(ResourceTestSuites, ActionRead)...)
	developer.add(grant(ResourceTestCases, ActionRead, ActionUpdate)...)
	developer.add(grant(ResourceExecutions, ActionRead)...)
	developer.add(grant(ResourceReports, ActionRead)...)

	viewer := NewPermissionSet()
	for resource := range catalog {
		viewer.add(Permission{Resource: resource, Action: ActionRead})
	}

	return map[GlobalRole]PermissionSet{
		GlobalRoleAdmin:      admin,
		GlobalRoleManager:    manager,
		GlobalRoleQAEngineer: qaEngineer,
		GlobalRoleTester:     tester,
		GlobalRoleDeveloper:  developer,
		GlobalRoleViewer:     viewer,
	}
}

// buildProjectGrants constructs each tier as a strict superset of the tier
// below it, so promoting a member can never remove a capability they had.
func buildProjectGrants() map[ProjectRole]PermissionSet {
	viewer := NewPermissionSet(grant(ResourceProjects, ActionRead)...)
	viewer.add(grant(ResourceTestSuites, ActionRead)...)
	viewer.add(grant(ResourceTestCases, ActionRead)...)
	viewer.add(grant(ResourceExecutions, ActionRead)...)
	viewer.add(grant(ResourceReports, ActionRead)...)

	contributor := viewer.clone()
	contributor.add(grant(ResourceTestCases, ActionCreate, ActionUpdate, ActionExecute)...)
	contributor.add(grant(ResourceExecutions, ActionCreate, ActionExecute)...)
	contributor.add(grant(ResourceReports, ActionCreate)...)

	maintainer := contributor.clone()
	maintainer.add(grant(ResourceTestSuites, ActionCreate, ActionUpdate, ActionDelete, ActionExport)...)
	maintainer.add(grant(ResourceTestCases, ActionDelete, ActionExport)...)
	maintainer.add(grant(ResourceExecutions, ActionUpdate, ActionExport)...)
	maintainer.add(grant(ResourceReports, ActionUpdate, ActionExport)...)

	owner := maintainer.clone()
	owner.add(grant(ResourceTestSuites, ActionManage)...)
	owner.add(grant(ResourceExecutions, ActionDelete)...)
	owner.add(grant(ResourceReports, ActionDelete)...)

	return map[ProjectRole]PermissionSet{
		ProjectRoleViewer:      viewer,
		ProjectRoleContributor: contributor,
		ProjectRoleMaintainer:  maintainer,
		ProjectRoleOwner:       owner,
	}
}

// grant expands one resource with several actions into permissions, dropping
// any pair the catalog does not list.
func grant(resource Resource, actions ...Action) []Permission {
	perms := make([]Permission, 0, len(actions))
	for _, action := range actions {
		if !IsValidAction(resource, action) {
			continue
		}
		perms = append(perms, Permission{Resource: resource, Action: action})
	}
	return perms
}
