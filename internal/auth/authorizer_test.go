package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRoleStore struct {
	roles      []domain.Role
	globals    map[uuid.UUID]domain.RoleName
	orgIDs     []uuid.UUID
	listErr    error
	listCalled bool
}

func (f *fakeRoleStore) ListForPrincipal(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, orgID uuid.UUID) ([]domain.Role, error) {
	f.listCalled = true
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Role
	for _, r := range f.roles {
		if r.PrincipalID == principalID && r.PrincipalType == pt && r.OrganizationID != nil && *r.OrganizationID == orgID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRoleStore) HasGlobalRole(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, role domain.RoleName) (bool, error) {
	return f.globals[principalID] == role, nil
}

func (f *fakeRoleStore) OrganizationIDs(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType) ([]uuid.UUID, error) {
	return f.orgIDs, nil
}

type fakeSecurityLog struct {
	events []audit.SecurityEvent
	err    error
}

func (f *fakeSecurityLog) Record(ctx context.Context, event audit.SecurityEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func orgRole(principalID, orgID uuid.UUID, name domain.RoleName) domain.Role {
	return domain.Role{
		ID:             uuid.New(),
		Type:           domain.RoleTypeOrganization,
		PrincipalID:    principalID,
		PrincipalType:  domain.PrincipalAccount,
		OrganizationID: &orgID,
		Role:           name,
	}
}

func accountPrincipal() Principal {
	return AccountPrincipal(&domain.Account{ID: uuid.New(), Name: "test"})
}

func TestResolve_TypeMismatchShortCircuits(t *testing.T) {
	store := &fakeRoleStore{}
	a := NewAuthorizer(store, &fakeSecurityLog{}, testLogger(), nil)

	key := APIKeyPrincipal(&domain.APIKey{ID: uuid.New()})
	decision, err := a.ResolveOrganizationAuthorization(
		context.Background(), key, AdminRoles, AccountsOnly, uuid.New(),
	)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if decision.HasAccess {
		t.Error("type mismatch must deny")
	}
	if decision.OrganizationRoles == nil || len(decision.OrganizationRoles) != 0 {
		t.Errorf("type mismatch must return an empty role set, got %v", decision.OrganizationRoles)
	}
	if store.listCalled {
		t.Error("type mismatch must not hit the role store")
	}
}

func TestResolve_AnyMatchingRoleAllows(t *testing.T) {
	p := accountPrincipal()
	orgID := uuid.New()
	store := &fakeRoleStore{roles: []domain.Role{
		orgRole(p.ID(), orgID, domain.RoleReader),
		orgRole(p.ID(), orgID, domain.RoleAdmin),
	}}
	a := NewAuthorizer(store, &fakeSecurityLog{}, testLogger(), nil)

	decision, err := a.ResolveOrganizationAuthorization(
		context.Background(), p, AdminRoles, AllPrincipalTypes, orgID,
	)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if !decision.HasAccess {
		t.Error("a single matching role must allow")
	}
	if len(decision.OrganizationRoles) != 2 {
		t.Errorf("decision must carry the full role set, got %d roles", len(decision.OrganizationRoles))
	}
}

func TestResolve_InsufficientRoleDeniesWithRoleSet(t *testing.T) {
	p := accountPrincipal()
	orgID := uuid.New()
	store := &fakeRoleStore{roles: []domain.Role{
		orgRole(p.ID(), orgID, domain.RoleReader),
	}}
	a := NewAuthorizer(store, &fakeSecurityLog{}, testLogger(), nil)

	decision, err := a.ResolveOrganizationAuthorization(
		context.Background(), p, AdminRoles, AllPrincipalTypes, orgID,
	)
	if err != nil {
		t.Fatalf("resolve error: %v", err)
	}
	if decision.HasAccess {
		t.Error("reader must not pass the admin allow-list")
	}
	if len(decision.OrganizationRoles) != 1 {
		t.Errorf("denial must still return held roles, got %d", len(decision.OrganizationRoles))
	}
}

func TestRequire_MemberWithoutRoleGetsForbidden(t *testing.T) {
	p := accountPrincipal()
	orgID := uuid.New()
	store := &fakeRoleStore{roles: []domain.Role{
		orgRole(p.ID(), orgID, domain.RoleReader),
	}}
	security := &fakeSecurityLog{}
	a := NewAuthorizer(store, security, testLogger(), nil)

	_, err := a.RequireOrganizationAccess(
		context.Background(), p, AdminRoles, AllPrincipalTypes, orgID, "organization.update",
	)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("member without role: got %v, want ErrForbidden", err)
	}
	if len(security.events) != 1 {
		t.Fatalf("expected 1 security event, got %d", len(security.events))
	}
	ev := security.events[0]
	if ev.EventType != audit.EventUnauthorizedAccess {
		t.Errorf("event type = %q", ev.EventType)
	}
	if ev.PrincipalID != p.ID() {
		t.Error("event must name the denied principal")
	}
	if ev.Source != "organization.update" {
		t.Errorf("event source = %q, want the operation", ev.Source)
	}
}

func TestRequire_NonMemberGetsNotFound(t *testing.T) {
	p := accountPrincipal()
	store := &fakeRoleStore{}
	security := &fakeSecurityLog{}
	a := NewAuthorizer(store, security, testLogger(), nil)

	_, err := a.RequireOrganizationAccess(
		context.Background(), p, MembershipRoles, AllPrincipalTypes, uuid.New(), "organization.get",
	)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("non-member: got %v, want ErrNotFound (existence must not leak)", err)
	}
	if errors.Is(err, domain.ErrForbidden) {
		t.Fatal("non-member must never see ErrForbidden")
	}
	if len(security.events) != 1 {
		t.Fatalf("expected 1 security event, got %d", len(security.events))
	}
}

func TestRequire_AllowedWritesNoSecurityEvent(t *testing.T) {
	p := accountPrincipal()
	orgID := uuid.New()
	store := &fakeRoleStore{roles: []domain.Role{
		orgRole(p.ID(), orgID, domain.RoleOwner),
	}}
	security := &fakeSecurityLog{}
	a := NewAuthorizer(store, security, testLogger(), nil)

	roles, err := a.RequireOrganizationAccess(
		context.Background(), p, AdminRoles, AllPrincipalTypes, orgID, "organization.delete",
	)
	if err != nil {
		t.Fatalf("owner must be allowed: %v", err)
	}
	if len(roles) != 1 {
		t.Errorf("expected held roles back, got %d", len(roles))
	}
	if len(security.events) != 0 {
		t.Errorf("allowed access must not write security events, got %d", len(security.events))
	}
}

func TestRequire_SecuritySinkFailureDoesNotMaskDenial(t *testing.T) {
	p := accountPrincipal()
	a := NewAuthorizer(&fakeRoleStore{}, &fakeSecurityLog{err: errors.New("sink down")}, testLogger(), nil)

	_, err := a.RequireOrganizationAccess(
		context.Background(), p, AdminRoles, AllPrincipalTypes, uuid.New(), "organization.update",
	)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("sink failure must not change the denial, got %v", err)
	}
}

func TestRequire_StoreErrorPropagates(t *testing.T) {
	p := accountPrincipal()
	store := &fakeRoleStore{listErr: errors.New("db down")}
	a := NewAuthorizer(store, &fakeSecurityLog{}, testLogger(), nil)

	_, err := a.RequireOrganizationAccess(
		context.Background(), p, AdminRoles, AllPrincipalTypes, uuid.New(), "organization.update",
	)
	if err == nil {
		t.Fatal("store error must propagate")
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("store error must not look like a denial, got %v", err)
	}
}

func TestIsGlobalAdmin(t *testing.T) {
	admin := uuid.New()
	store := &fakeRoleStore{globals: map[uuid.UUID]domain.RoleName{admin: domain.RoleAdmin}}
	a := NewAuthorizer(store, &fakeSecurityLog{}, testLogger(), nil)

	ok, err := a.IsGlobalAdmin(context.Background(), admin, domain.PrincipalAccount)
	if err != nil || !ok {
		t.Fatalf("IsGlobalAdmin(admin) = %v, %v", ok, err)
	}
	ok, err = a.IsGlobalAdmin(context.Background(), uuid.New(), domain.PrincipalAccount)
	if err != nil || ok {
		t.Fatalf("IsGlobalAdmin(other) = %v, %v", ok, err)
	}
}

func TestAllowListNesting(t *testing.T) {
	// Each wider list contains the narrower one.
	for _, r := range AdminRoles {
		if !containsRole(WriterRoles, r) || !containsRole(MembershipRoles, r) {
			t.Errorf("role %q missing from wider allow-lists", r)
		}
	}
	for _, r := range WriterRoles {
		if !containsRole(MembershipRoles, r) {
			t.Errorf("role %q missing from membership list", r)
		}
	}
}

func containsRole(list []domain.RoleName, r domain.RoleName) bool {
	for _, x := range list {
		if x == r {
			return true
		}
	}
	return false
}
