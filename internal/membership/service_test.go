package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carlosarta/haida/internal/audit"
	"github.com/carlosarta/haida/internal/rbac"
)

func newTestService(t *testing.T) (*Service, *audit.Memory) {
	t.Helper()
	trail := audit.NewMemory()
	svc := NewService(NewMemory(), audit.NewLog(trail))
	return svc, trail
}

func seedActor(t *testing.T, svc *Service, role rbac.GlobalRole) *User {
	t.Helper()
	actor := &User{
		ID:           "actor-" + string(role),
		Email:        string(role) + "@haida.com",
		GlobalRole:   role,
		Status:       StatusActive,
		ProjectRoles: make([]ProjectMembership, 0),
		CreatedAt:    time.Now().UTC(),
	}
	if err := svc.store.CreateUser(context.Background(), actor); err != nil {
		t.Fatalf("seed actor: %v", err)
	}
	return actor
}

func seedProject(t *testing.T, svc *Service, actor *User, key string) *Project {
	t.Helper()
	project, err := svc.CreateProject(context.Background(), actor, key, key+" Project")
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return project
}

func TestInviteCreatesPendingUser(t *testing.T) {
	svc, trail := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)

	user, err := svc.Invite(context.Background(), admin, " Ana@HAIDA.com ", rbac.GlobalRoleTester)
	if err != nil {
		t.Fatalf("Invite: %v", err)
	}
	if user.Email != "ana@haida.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if user.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", user.Status)
	}
	if user.ID == "" || user.CreatedAt.IsZero() {
		t.Fatalf("user not initialized: %+v", user)
	}

	entries, err := trail.ListByUser(context.Background(), user.ID, 10)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d (err %v)", len(entries), err)
	}
	if entries[0].Action != "user_invited" {
		t.Fatalf("unexpected audit action: %s", entries[0].Action)
	}
}

func TestInviteDuplicateEmailConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()

	if _, err := svc.Invite(ctx, admin, "ana@haida.com", rbac.GlobalRoleTester); err != nil {
		t.Fatalf("first invite: %v", err)
	}
	_, err := svc.Invite(ctx, admin, "ana@haida.com", rbac.GlobalRoleViewer)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	users, err := svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	var matches int
	for _, u := range users {
		if u.Email == "ana@haida.com" {
			matches++
			if u.Status != StatusPending {
				t.Fatalf("expected surviving user pending, got %s", u.Status)
			}
		}
	}
	if matches != 1 {
		t.Fatalf("expected exactly one user with that email, got %d", matches)
	}
}

func TestInviteRequiresUsersCreate(t *testing.T) {
	svc, _ := newTestService(t)
	tester := seedActor(t, svc, rbac.GlobalRoleTester)

	_, err := svc.Invite(context.Background(), tester, "new@haida.com", rbac.GlobalRoleViewer)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestUpdateGlobalRoleEditorGate(t *testing.T) {
	svc, trail := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	manager := seedActor(t, svc, rbac.GlobalRoleManager)
	qa := seedActor(t, svc, rbac.GlobalRoleQAEngineer)
	ctx := context.Background()

	target, err := svc.Invite(ctx, admin, "target@haida.com", rbac.GlobalRoleViewer)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	if _, err := svc.UpdateGlobalRole(ctx, qa, target.ID, rbac.GlobalRoleAdmin); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("qa_engineer must not edit global roles, got %v", err)
	}

	updated, err := svc.UpdateGlobalRole(ctx, manager, target.ID, rbac.GlobalRoleDeveloper)
	if err != nil {
		t.Fatalf("manager update: %v", err)
	}
	if updated.GlobalRole != rbac.GlobalRoleDeveloper {
		t.Fatalf("role not replaced: %s", updated.GlobalRole)
	}

	if _, err := svc.UpdateGlobalRole(ctx, admin, "missing", rbac.GlobalRoleViewer); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing target, got %v", err)
	}

	entries, _ := trail.ListByUser(ctx, target.ID, 10)
	var changes int
	for _, e := range entries {
		if e.Action == "role_changed" {
			changes++
		}
	}
	if changes != 1 {
		t.Fatalf("expected one role_changed entry, got %d", changes)
	}
}

func TestAssignProjectRoleIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()
	project := seedProject(t, svc, admin, "ECM")

	target, err := svc.Invite(ctx, admin, "member@haida.com", rbac.GlobalRoleQAEngineer)
	if err != nil {
		t.Fatalf("invite: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.AssignProjectRole(ctx, admin, target.ID, project.ID, rbac.ProjectRoleContributor); err != nil {
			t.Fatalf("assign %d: %v", i, err)
		}
	}
	user, err := svc.GetUser(ctx, target.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(user.ProjectRoles) != 1 {
		t.Fatalf("expected exactly one membership, got %d", len(user.ProjectRoles))
	}
	m := user.ProjectRoles[0]
	if m.Role != rbac.ProjectRoleContributor || m.ProjectKey != "ECM" {
		t.Fatalf("unexpected membership: %+v", m)
	}
}

func TestAssignProjectRoleUpdatesInPlace(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()
	project := seedProject(t, svc, admin, "ECM")

	target, _ := svc.Invite(ctx, admin, "member@haida.com", rbac.GlobalRoleTester)
	first, err := svc.AssignProjectRole(ctx, admin, target.ID, project.ID, rbac.ProjectRoleViewer)
	if err != nil {
		t.Fatalf("assign viewer: %v", err)
	}
	joined := first.ProjectRoles[0].AddedAt

	promoted, err := svc.AssignProjectRole(ctx, admin, target.ID, project.ID, rbac.ProjectRoleMaintainer)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if len(promoted.ProjectRoles) != 1 {
		t.Fatalf("promotion duplicated membership: %d", len(promoted.ProjectRoles))
	}
	if promoted.ProjectRoles[0].Role != rbac.ProjectRoleMaintainer {
		t.Fatalf("role not updated: %s", promoted.ProjectRoles[0].Role)
	}
	if !promoted.ProjectRoles[0].AddedAt.Equal(joined) {
		t.Fatalf("join time must survive promotion")
	}
}

func TestAssignProjectRoleMissingProject(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()

	target, _ := svc.Invite(ctx, admin, "member@haida.com", rbac.GlobalRoleTester)
	_, err := svc.AssignProjectRole(ctx, admin, target.ID, "no-such-project", rbac.ProjectRoleViewer)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveProjectRoleKeepsGlobalGrants(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()
	project := seedProject(t, svc, admin, "ECM")

	target, _ := svc.Invite(ctx, admin, "member@haida.com", rbac.GlobalRoleQAEngineer)
	if _, err := svc.AssignProjectRole(ctx, admin, target.ID, project.ID, rbac.ProjectRoleContributor); err != nil {
		t.Fatalf("assign: %v", err)
	}

	removed, err := svc.RemoveProjectRole(ctx, admin, target.ID, project.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(removed.ProjectRoles) != 0 {
		t.Fatalf("expected empty memberships, got %v", removed.ProjectRoles)
	}
	effective := rbac.EffectivePermissions(removed.GlobalRole, rbac.ProjectRoleNone)
	if !effective.Has(rbac.ResourceTestCases, rbac.ActionUpdate) {
		t.Fatal("global grants must survive membership removal")
	}

	if _, err := svc.RemoveProjectRole(ctx, admin, target.ID, project.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second removal must be ErrNotFound, got %v", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()

	target, _ := svc.Invite(ctx, admin, "member@haida.com", rbac.GlobalRoleViewer)
	updated, err := svc.UpdateStatus(ctx, admin, target.ID, StatusActive)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if updated.Status != StatusActive {
		t.Fatalf("status not applied: %s", updated.Status)
	}

	if _, err := svc.UpdateStatus(ctx, admin, target.ID, StatusPending); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("pending must not be assignable, got %v", err)
	}

	viewer := seedActor(t, svc, rbac.GlobalRoleViewer)
	if _, err := svc.UpdateStatus(ctx, viewer, target.ID, StatusInactive); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("viewer must not change status, got %v", err)
	}
}

func TestDeleteUserCascadesMemberships(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()
	ecm := seedProject(t, svc, admin, "ECM")
	crm := seedProject(t, svc, admin, "CRM")

	target, _ := svc.Invite(ctx, admin, "member@haida.com", rbac.GlobalRoleTester)
	_, _ = svc.AssignProjectRole(ctx, admin, target.ID, ecm.ID, rbac.ProjectRoleContributor)
	_, _ = svc.AssignProjectRole(ctx, admin, target.ID, crm.ID, rbac.ProjectRoleViewer)

	if err := svc.DeleteUser(ctx, admin, target.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetUser(ctx, target.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
	users, _ := svc.ListUsers(ctx)
	for _, u := range users {
		for _, m := range u.ProjectRoles {
			if m.ProjectID == target.ID {
				t.Fatalf("dangling membership after delete: %+v", m)
			}
		}
	}

	if err := svc.DeleteUser(ctx, admin, target.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func TestAuthenticateActivatesPendingUser(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()

	target, _ := svc.Invite(ctx, admin, "ana@haida.com", rbac.GlobalRoleTester)
	if err := svc.SetPassword(ctx, target, target.ID, "s3cret-enough"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	user, err := svc.Authenticate(ctx, "ana@haida.com", "s3cret-enough")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Status != StatusActive {
		t.Fatalf("first login must activate, got %s", user.Status)
	}
	if user.LastLogin == nil {
		t.Fatal("last login not stamped")
	}

	if _, err := svc.Authenticate(ctx, "ana@haida.com", "wrong-password"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, admin, target.ID, StatusInactive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "ana@haida.com", "s3cret-enough"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive user must not log in, got %v", err)
	}
}

func TestSetPasswordGate(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	tester := seedActor(t, svc, rbac.GlobalRoleTester)
	ctx := context.Background()

	target, _ := svc.Invite(ctx, admin, "someone@haida.com", rbac.GlobalRoleViewer)

	if err := svc.SetPassword(ctx, tester, target.ID, "passw0rd-123"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("tester must not set another user's password, got %v", err)
	}
	if err := svc.SetPassword(ctx, admin, target.ID, "passw0rd-123"); err != nil {
		t.Fatalf("admin set password: %v", err)
	}
}

func TestAuditTrailOrderAndLimit(t *testing.T) {
	svc, _ := newTestService(t)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)
	ctx := context.Background()

	target, _ := svc.Invite(ctx, admin, "busy@haida.com", rbac.GlobalRoleViewer)
	roles := []rbac.GlobalRole{
		rbac.GlobalRoleTester,
		rbac.GlobalRoleDeveloper,
		rbac.GlobalRoleQAEngineer,
		rbac.GlobalRoleViewer,
		rbac.GlobalRoleTester,
		rbac.GlobalRoleDeveloper,
	}
	for _, role := range roles {
		if _, err := svc.UpdateGlobalRole(ctx, admin, target.ID, role); err != nil {
			t.Fatalf("update to %s: %v", role, err)
		}
	}

	entries, err := svc.AuditTrail(ctx, target.ID, 5)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.After(entries[i-1].Timestamp) {
			t.Fatalf("trail not newest-first at %d", i)
		}
	}
}

func TestAuditFailureDoesNotFailMutation(t *testing.T) {
	trail := audit.NewLog(brokenAuditStore{})
	svc := NewService(NewMemory(), trail)
	admin := seedActor(t, svc, rbac.GlobalRoleAdmin)

	user, err := svc.Invite(context.Background(), admin, "ana@haida.com", rbac.GlobalRoleTester)
	if err != nil {
		t.Fatalf("mutation must survive audit failure: %v", err)
	}
	if _, err := svc.GetUser(context.Background(), user.ID); err != nil {
		t.Fatalf("mutation not applied: %v", err)
	}
}

type brokenAuditStore struct{}

func (brokenAuditStore) Append(context.Context, *audit.Entry) error {
	return errors.New("audit backend unavailable")
}

func (brokenAuditStore) ListByUser(context.Context, string, int) ([]audit.Entry, error) {
	return nil, nil
}
