package organization

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOrgStore struct {
	orgs      map[uuid.UUID]*domain.Organization
	listAll   bool
	deleteErr error
	createErr error
}

func newFakeOrgStore(orgs ...*domain.Organization) *fakeOrgStore {
	f := &fakeOrgStore{orgs: map[uuid.UUID]*domain.Organization{}}
	for _, o := range orgs {
		f.orgs[o.ID] = o
	}
	return f
}

func (f *fakeOrgStore) Get(ctx context.Context, id uuid.UUID) (*domain.Organization, error) {
	if o, ok := f.orgs[id]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeOrgStore) List(ctx context.Context) ([]domain.Organization, error) {
	f.listAll = true
	out := make([]domain.Organization, 0, len(f.orgs))
	for _, o := range f.orgs {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrgStore) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Organization, error) {
	out := []domain.Organization{}
	for _, id := range ids {
		if o, ok := f.orgs[id]; ok {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrgStore) Create(ctx context.Context, tx *gorm.DB, org *domain.Organization, actx audit.Context) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.orgs[org.ID] = org
	return nil
}

func (f *fakeOrgStore) Update(ctx context.Context, tx *gorm.DB, org *domain.Organization, actx audit.Context) error {
	if _, ok := f.orgs[org.ID]; !ok {
		return domain.ErrNotFound
	}
	f.orgs[org.ID] = org
	return nil
}

func (f *fakeOrgStore) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID, actx audit.Context) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.orgs, id)
	return nil
}

type fakeRoleRepo struct {
	roles     map[uuid.UUID]*domain.Role
	revokeErr error
}

func newFakeRoleRepo(roles ...*domain.Role) *fakeRoleRepo {
	f := &fakeRoleRepo{roles: map[uuid.UUID]*domain.Role{}}
	for _, r := range roles {
		f.roles[r.ID] = r
	}
	return f
}

func (f *fakeRoleRepo) ListForOrganization(ctx context.Context, orgID uuid.UUID) ([]domain.Role, error) {
	out := []domain.Role{}
	for _, r := range f.roles {
		if r.OrganizationID != nil && *r.OrganizationID == orgID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) ListForPrincipal(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, orgID uuid.UUID) ([]domain.Role, error) {
	out := []domain.Role{}
	for _, r := range f.roles {
		if r.PrincipalID == principalID && r.PrincipalType == pt && r.OrganizationID != nil && *r.OrganizationID == orgID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) HasGlobalRole(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType, role domain.RoleName) (bool, error) {
	for _, r := range f.roles {
		if r.Type == domain.RoleTypeGlobal && r.PrincipalID == principalID && r.PrincipalType == pt && r.Role == role {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRoleRepo) OrganizationIDs(ctx context.Context, principalID uuid.UUID, pt domain.PrincipalType) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	out := []uuid.UUID{}
	for _, r := range f.roles {
		if r.PrincipalID == principalID && r.PrincipalType == pt && r.OrganizationID != nil && !seen[*r.OrganizationID] {
			seen[*r.OrganizationID] = true
			out = append(out, *r.OrganizationID)
		}
	}
	return out, nil
}

func (f *fakeRoleRepo) Grant(ctx context.Context, tx *gorm.DB, role *domain.Role, actx audit.Context) error {
	f.roles[role.ID] = role
	return nil
}

func (f *fakeRoleRepo) Revoke(ctx context.Context, tx *gorm.DB, roleID uuid.UUID, actx audit.Context) error {
	if f.revokeErr != nil {
		return f.revokeErr
	}
	delete(f.roles, roleID)
	return nil
}

// fakeTx snapshots the fake stores before the callback and restores them when
// it fails, matching the rollback the real driver would do.
type fakeTx struct {
	orgs  *fakeOrgStore
	roles *fakeRoleRepo
	calls int
}

func (f *fakeTx) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	f.calls++
	var orgSnap map[uuid.UUID]*domain.Organization
	var roleSnap map[uuid.UUID]*domain.Role
	if f.orgs != nil {
		orgSnap = map[uuid.UUID]*domain.Organization{}
		for k, v := range f.orgs.orgs {
			orgSnap[k] = v
		}
	}
	if f.roles != nil {
		roleSnap = map[uuid.UUID]*domain.Role{}
		for k, v := range f.roles.roles {
			roleSnap[k] = v
		}
	}
	if err := fn(nil); err != nil {
		if f.orgs != nil {
			f.orgs.orgs = orgSnap
		}
		if f.roles != nil {
			f.roles.roles = roleSnap
		}
		return err
	}
	return nil
}

type recordingHook struct {
	calls    int
	lastOrg  *domain.Organization
	lastActx audit.Context
	err      error
}

func (h *recordingHook) OnOrganizationDelete(ctx context.Context, org *domain.Organization, actx audit.Context, tx *gorm.DB) error {
	h.calls++
	h.lastOrg = org
	h.lastActx = actx
	return h.err
}

func testOrg(name string) *domain.Organization {
	return &domain.Organization{ID: uuid.New(), Name: name}
}

func memberRole(principalID, orgID uuid.UUID, name domain.RoleName) *domain.Role {
	return &domain.Role{
		ID:             uuid.New(),
		Type:           domain.RoleTypeOrganization,
		PrincipalID:    principalID,
		PrincipalType:  domain.PrincipalAccount,
		OrganizationID: &orgID,
		Role:           name,
	}
}

func systemActx() audit.Context {
	return audit.BySystem("test")
}

func TestDeleteOrganization_MissingOrgIsNotFoundBeforeTx(t *testing.T) {
	tx := &fakeTx{}
	l := NewLifecycle(newFakeOrgStore(), newFakeRoleRepo(), tx, nil, testLogger(), nil, nil)

	_, err := l.DeleteOrganization(context.Background(), uuid.New(), systemActx())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if tx.calls != 0 {
		t.Error("a missing organization must not open a transaction")
	}
}

func TestDeleteOrganization_CascadesRolesHookAndRecord(t *testing.T) {
	org := testOrg("acme")
	p1, p2 := uuid.New(), uuid.New()
	other := testOrg("other")
	roles := newFakeRoleRepo(
		memberRole(p1, org.ID, domain.RoleOwner),
		memberRole(p2, org.ID, domain.RoleReader),
		memberRole(p1, other.ID, domain.RoleOwner),
	)
	orgs := newFakeOrgStore(org, other)
	hook := &recordingHook{}
	l := NewLifecycle(orgs, roles, &fakeTx{orgs: orgs, roles: roles}, hook, testLogger(), nil, nil)

	res, err := l.DeleteOrganization(context.Background(), org.ID, systemActx())
	if err != nil {
		t.Fatalf("DeleteOrganization: %v", err)
	}
	if !res.OrganizationDeleted || res.RolesDeleted != 2 {
		t.Errorf("result = %+v, want deleted with 2 roles", res)
	}
	if _, ok := orgs.orgs[org.ID]; ok {
		t.Error("organization row must be gone")
	}
	if _, ok := orgs.orgs[other.ID]; !ok {
		t.Error("unrelated organization must survive")
	}
	if len(roles.roles) != 1 {
		t.Errorf("roles remaining = %d, want the unrelated grant only", len(roles.roles))
	}
	if hook.calls != 1 {
		t.Fatalf("hook calls = %d, want exactly 1", hook.calls)
	}
	if hook.lastOrg.ID != org.ID {
		t.Error("hook must receive the organization being deleted")
	}
}

func TestDeleteOrganization_HookFailureRollsBackEverything(t *testing.T) {
	org := testOrg("acme")
	p := uuid.New()
	roles := newFakeRoleRepo(memberRole(p, org.ID, domain.RoleOwner))
	orgs := newFakeOrgStore(org)
	hook := &recordingHook{err: errors.New("dependent data busy")}
	l := NewLifecycle(orgs, roles, &fakeTx{orgs: orgs, roles: roles}, hook, testLogger(), nil, nil)

	_, err := l.DeleteOrganization(context.Background(), org.ID, systemActx())
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("got %v, want ErrInternal", err)
	}
	if _, ok := orgs.orgs[org.ID]; !ok {
		t.Error("organization row must survive a rolled-back cascade")
	}
	if len(roles.roles) != 1 {
		t.Error("role revokes must be rolled back with the rest")
	}
}

func TestDeleteOrganization_RevokeFailureRollsBack(t *testing.T) {
	org := testOrg("acme")
	roles := newFakeRoleRepo(memberRole(uuid.New(), org.ID, domain.RoleOwner))
	roles.revokeErr = errors.New("db down")
	orgs := newFakeOrgStore(org)
	hook := &recordingHook{}
	l := NewLifecycle(orgs, roles, &fakeTx{orgs: orgs, roles: roles}, hook, testLogger(), nil, nil)

	_, err := l.DeleteOrganization(context.Background(), org.ID, systemActx())
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("got %v, want ErrInternal", err)
	}
	if _, ok := orgs.orgs[org.ID]; !ok {
		t.Error("organization row must survive")
	}
	if hook.calls != 0 {
		t.Error("hook must not run after a failed revoke")
	}
}

func TestDeleteOrganization_NoHookRegistered(t *testing.T) {
	org := testOrg("bare")
	orgs := newFakeOrgStore(org)
	roles := newFakeRoleRepo()
	l := NewLifecycle(orgs, roles, &fakeTx{orgs: orgs, roles: roles}, nil, testLogger(), nil, nil)

	res, err := l.DeleteOrganization(context.Background(), org.ID, systemActx())
	if err != nil {
		t.Fatalf("DeleteOrganization: %v", err)
	}
	if !res.OrganizationDeleted || res.RolesDeleted != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestCreateOrganization_GrantsOwnerInSameTx(t *testing.T) {
	orgs := newFakeOrgStore()
	roles := newFakeRoleRepo()
	l := NewLifecycle(orgs, roles, &fakeTx{orgs: orgs, roles: roles}, nil, testLogger(), nil, nil)

	principalID := uuid.New()
	org, err := l.CreateOrganization(context.Background(), "acme", principalID, domain.PrincipalAccount, roles, systemActx())
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if _, ok := orgs.orgs[org.ID]; !ok {
		t.Error("organization not stored")
	}
	held, _ := roles.ListForPrincipal(context.Background(), principalID, domain.PrincipalAccount, org.ID)
	if len(held) != 1 || held[0].Role != domain.RoleOwner {
		t.Errorf("creator roles = %+v, want one Owner grant", held)
	}
}

func TestCreateOrganization_EmptyNameRejected(t *testing.T) {
	l := NewLifecycle(newFakeOrgStore(), newFakeRoleRepo(), &fakeTx{}, nil, testLogger(), nil, nil)

	_, err := l.CreateOrganization(context.Background(), "", uuid.New(), domain.PrincipalAccount, newFakeRoleRepo(), systemActx())
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestCreateOrganization_StoreFailureRollsBackGrant(t *testing.T) {
	orgs := newFakeOrgStore()
	orgs.createErr = errors.New("insert failed")
	roles := newFakeRoleRepo()
	l := NewLifecycle(orgs, roles, &fakeTx{orgs: orgs, roles: roles}, nil, testLogger(), nil, nil)

	_, err := l.CreateOrganization(context.Background(), "acme", uuid.New(), domain.PrincipalAccount, roles, systemActx())
	if err == nil {
		t.Fatal("store failure must propagate")
	}
	if len(roles.roles) != 0 {
		t.Error("owner grant must not survive a failed create")
	}
}
