package rbac

import "sort"

// PermissionSet is a set of catalog permissions keyed by "resource.action".
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	set.add(perms...)
	return set
}

func (s PermissionSet) add(perms ...Permission) {
	for _, p := range perms {
		s[p.Key()] = struct{}{}
	}
}

func (s PermissionSet) clone() PermissionSet {
	out := make(PermissionSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Has reports whether the set grants action on resource. Catalog-invalid
// pairs are always denied, even if a misconfigured table were to list them.
func (s PermissionSet) Has(resource Resource, action Action) bool {
	if !IsValidAction(resource, action) {
		return false
	}
	_, ok := s[Permission{Resource: resource, Action: action}.Key()]
	return ok
}

// HasKey is Has for a serialized "resource.action" key.
func (s PermissionSet) HasKey(key string) bool {
	perm, ok := ParsePermission(key)
	if !ok {
		return false
	}
	return s.Has(perm.Resource, perm.Action)
}

// Keys returns the sorted serialized permissions, mainly for display and tests.
func (s PermissionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EffectivePermissions resolves the permission set for a user holding the
// given global role, optionally evaluated inside a project where the user
// holds project. Pass ProjectRoleNone outside any project context.
//
// The result is the union of the two grants: a project role adds capability
// within its resource scope and never subtracts anything the global role
// already grants. Unknown roles contribute nothing rather than failing, so
// the resolver is safe to call on every request.
func EffectivePermissions(global GlobalRole, project ProjectRole) PermissionSet {
	globalGrants, projectGrants := grantTables()

	effective := NewPermissionSet()
	if grants, ok := globalGrants[global]; ok {
		for k := range grants {
			effective[k] = struct{}{}
		}
	}
	if grants, ok := projectGrants[project]; ok {
		for k := range grants {
			effective[k] = struct{}{}
		}
	}
	return effective
}

// globalRoleEditors is the fixed privileged set allowed to change another
// user's global role.
var globalRoleEditors = map[GlobalRole]struct{}{
	GlobalRoleAdmin:   {},
	GlobalRoleManager: {},
}

// CanEditGlobalRoles reports whether the actor's role may change another
// user's global role. It must be checked server-side on every such mutation;
// any UI check is cosmetic.
func CanEditGlobalRoles(actor GlobalRole) bool {
	_, ok := globalRoleEditors[actor]
	return ok
}
