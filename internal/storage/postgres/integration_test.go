//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quillhq/quill/internal/audit"
	"github.com/quillhq/quill/internal/domain"
	"github.com/quillhq/quill/internal/storage"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping integration test")
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db, err := Open(storage.Config{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("opening postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testActor() (uuid.UUID, audit.Context) {
	id := uuid.New()
	return id, audit.ByPrincipal(id, domain.PrincipalAccount).WithSource("integration_test")
}

func createTestOrg(t *testing.T, db *DB, actx audit.Context) *domain.Organization {
	t.Helper()
	repo := NewOrganizationRepository(db.GormDB())
	org := &domain.Organization{
		ID:   uuid.New(),
		Name: fmt.Sprintf("test-%s", uuid.New().String()[:8]),
	}
	if err := repo.Create(context.Background(), nil, org, actx); err != nil {
		t.Fatalf("creating test org: %v", err)
	}
	return org
}

// --- Mutation/Audit Pairing ---

func TestAuditPairing_CreateUpdateDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	actorID, actx := testActor()

	repo := NewOrganizationRepository(db.GormDB())
	auditRepo := NewAuditRepository(db.GormDB())

	org := createTestOrg(t, db, actx)

	org.Name = org.Name + "-renamed"
	if err := repo.Update(ctx, nil, org, actx); err != nil {
		t.Fatalf("updating: %v", err)
	}
	if err := repo.Delete(ctx, nil, org.ID, actx); err != nil {
		t.Fatalf("deleting: %v", err)
	}

	records, err := auditRepo.ListForEntity(ctx, org.ID)
	if err != nil {
		t.Fatalf("listing audit records: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("audit records = %d, want 3 (create, update, delete)", len(records))
	}

	seen := map[audit.Action]bool{}
	for _, rec := range records {
		seen[rec.Action] = true
		if rec.Context.PrincipalID == nil || *rec.Context.PrincipalID != actorID {
			t.Errorf("record %s not attributed to the acting principal", rec.ID)
		}
		if rec.Context.Source != "integration_test" {
			t.Errorf("record source = %q", rec.Context.Source)
		}
	}
	for _, action := range []audit.Action{audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete} {
		if !seen[action] {
			t.Errorf("missing audit record for %s", action)
		}
	}
}

func TestAuditedUpdate_PreservesCreatedAt(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, actx := testActor()

	repo := NewOrganizationRepository(db.GormDB())
	org := createTestOrg(t, db, actx)

	before, err := repo.Get(ctx, org.ID)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if before.CreatedAt.IsZero() {
		t.Fatal("created_at not set on insert")
	}

	before.Name = before.Name + "-renamed"
	if err := repo.Update(ctx, nil, before, actx); err != nil {
		t.Fatalf("updating: %v", err)
	}

	after, err := repo.Get(ctx, org.ID)
	if err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if after.Name != before.Name {
		t.Errorf("name = %q, want %q", after.Name, before.Name)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("created_at changed by update: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
}

func TestAuditedUpdate_DeletedRowStaysDeleted(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, actx := testActor()

	repo := NewOrganizationRepository(db.GormDB())
	auditRepo := NewAuditRepository(db.GormDB())
	org := createTestOrg(t, db, actx)

	if err := repo.Delete(ctx, nil, org.ID, actx); err != nil {
		t.Fatalf("deleting: %v", err)
	}

	org.Name = "ghost"
	if err := repo.Update(ctx, nil, org, actx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("updating a deleted row: got %v, want ErrNotFound", err)
	}

	if _, err := repo.Get(ctx, org.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Error("update must not resurrect the deleted row")
	}
	records, _ := auditRepo.ListForEntity(ctx, org.ID)
	if len(records) != 2 {
		t.Errorf("audit records = %d, want 2 (create, delete)", len(records))
	}
}

func TestMutator_UpsertAuditsCreateThenUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, actx := testActor()

	mutator := NewMutator(db.GormDB())
	auditRepo := NewAuditRepository(db.GormDB())

	id := uuid.New()
	m := OrganizationModel{ID: id, Name: "draft", Slug: "upsert-" + id.String()[:8]}
	if err := mutator.Upsert(ctx, nil, EntityOrganization, id, &m, actx); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	var inserted OrganizationModel
	if err := db.GormDB().First(&inserted, "id = ?", id).Error; err != nil {
		t.Fatalf("reloading: %v", err)
	}

	second := OrganizationModel{ID: id, Name: "final", Slug: inserted.Slug}
	if err := mutator.Upsert(ctx, nil, EntityOrganization, id, &second, actx); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var after OrganizationModel
	if err := db.GormDB().First(&after, "id = ?", id).Error; err != nil {
		t.Fatalf("reloading: %v", err)
	}
	if after.Name != "final" {
		t.Errorf("name = %q, want %q", after.Name, "final")
	}
	if !after.CreatedAt.Equal(inserted.CreatedAt) {
		t.Errorf("created_at changed by upsert: %v -> %v", inserted.CreatedAt, after.CreatedAt)
	}

	records, err := auditRepo.ListForEntity(ctx, id)
	if err != nil {
		t.Fatalf("listing audit records: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("audit records = %d, want 2 (create, update)", len(records))
	}
	if records[0].Action != audit.ActionCreate || records[1].Action != audit.ActionUpdate {
		t.Errorf("audit actions = %s, %s; want create then update", records[0].Action, records[1].Action)
	}
}

func TestCreateIfAbsent_LosingInsertLeavesNoAuditRecord(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, actx := testActor()

	repo := NewAccountRepository(db.GormDB())
	auditRepo := NewAuditRepository(db.GormDB())

	externalID := uuid.New().String()
	first := &domain.Account{ID: uuid.New(), Provider: "test", ExternalID: externalID, Name: "first"}
	second := &domain.Account{ID: uuid.New(), Provider: "test", ExternalID: externalID, Name: "second"}

	created, err := repo.CreateIfAbsent(ctx, nil, first, actx)
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	created, err = repo.CreateIfAbsent(ctx, nil, second, actx)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Error("conflicting insert must report created=false")
	}

	if records, _ := auditRepo.ListForEntity(ctx, second.ID); len(records) != 0 {
		t.Errorf("losing insert left %d audit records, want 0", len(records))
	}
	if records, _ := auditRepo.ListForEntity(ctx, first.ID); len(records) != 1 {
		t.Errorf("winning insert has %d audit records, want 1", len(records))
	}
}

// --- Transaction Atomicity ---

func TestWithTransaction_ErrorRollsBackAllWrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, actx := testActor()

	orgRepo := NewOrganizationRepository(db.GormDB())
	roleRepo := NewRoleRepository(db.GormDB())
	org := createTestOrg(t, db, actx)

	boom := errors.New("abort")
	err := db.WithTransaction(ctx, func(tx *gorm.DB) error {
		role := &domain.Role{
			ID:             uuid.New(),
			Type:           domain.RoleTypeOrganization,
			PrincipalID:    uuid.New(),
			PrincipalType:  domain.PrincipalAccount,
			OrganizationID: &org.ID,
			Role:           domain.RoleOwner,
		}
		if err := roleRepo.Grant(ctx, tx, role, actx); err != nil {
			return err
		}
		if err := orgRepo.Delete(ctx, tx, org.ID, actx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction = %v, want the injected error", err)
	}

	if _, err := orgRepo.Get(ctx, org.ID); err != nil {
		t.Errorf("organization must survive the rollback: %v", err)
	}
	roles, err := roleRepo.ListForOrganization(ctx, org.ID)
	if err != nil {
		t.Fatalf("listing roles: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("rolled-back grant left %d roles", len(roles))
	}
}

// --- Role Repository ---

func TestRoleRepository_GrantListRevoke(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	principalID, actx := testActor()

	repo := NewRoleRepository(db.GormDB())
	org := createTestOrg(t, db, actx)

	role := &domain.Role{
		ID:             uuid.New(),
		Type:           domain.RoleTypeOrganization,
		PrincipalID:    principalID,
		PrincipalType:  domain.PrincipalAccount,
		OrganizationID: &org.ID,
		Role:           domain.RoleAdmin,
	}
	if err := repo.Grant(ctx, nil, role, actx); err != nil {
		t.Fatalf("granting: %v", err)
	}

	held, err := repo.ListForPrincipal(ctx, principalID, domain.PrincipalAccount, org.ID)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(held) != 1 || held[0].Role != domain.RoleAdmin {
		t.Errorf("held = %+v", held)
	}

	ids, err := repo.OrganizationIDs(ctx, principalID, domain.PrincipalAccount)
	if err != nil {
		t.Fatalf("organization ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != org.ID {
		t.Errorf("organization ids = %v", ids)
	}

	global := &domain.Role{
		ID:            uuid.New(),
		Type:          domain.RoleTypeGlobal,
		PrincipalID:   principalID,
		PrincipalType: domain.PrincipalAccount,
		Role:          domain.RoleAdmin,
	}
	if err := repo.Grant(ctx, nil, global, actx); err != nil {
		t.Fatalf("granting global: %v", err)
	}
	ok, err := repo.HasGlobalRole(ctx, principalID, domain.PrincipalAccount, domain.RoleAdmin)
	if err != nil || !ok {
		t.Errorf("HasGlobalRole = %v, %v", ok, err)
	}

	if err := repo.Revoke(ctx, nil, role.ID, actx); err != nil {
		t.Fatalf("revoking: %v", err)
	}
	held, _ = repo.ListForPrincipal(ctx, principalID, domain.PrincipalAccount, org.ID)
	if len(held) != 0 {
		t.Errorf("roles after revoke = %d, want 0", len(held))
	}
}

// --- API Keys ---

func TestAPIKeyRepository_ExpiryAndBulkDelete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, actx := testActor()

	repo := NewAPIKeyRepository(db.GormDB())
	auditRepo := NewAuditRepository(db.GormDB())
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := &domain.APIKey{ID: uuid.New(), Name: "expired", SecretHash: uuid.New().String(), ExpiresAt: &past}
	live := &domain.APIKey{ID: uuid.New(), Name: "live", SecretHash: uuid.New().String(), ExpiresAt: &future}
	forever := &domain.APIKey{ID: uuid.New(), Name: "forever", SecretHash: uuid.New().String()}
	for _, k := range []*domain.APIKey{expired, live, forever} {
		if err := repo.Create(ctx, nil, k, actx); err != nil {
			t.Fatalf("creating key %s: %v", k.Name, err)
		}
	}

	ids, err := repo.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("listing expired: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == live.ID || id == forever.ID {
			t.Errorf("unexpired key %s listed as expired", id)
		}
		if id == expired.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expired key not listed")
	}

	deleted, err := repo.DeleteAll(ctx, nil, []uuid.UUID{expired.ID, uuid.New()}, actx)
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1 (unknown ids skipped)", deleted)
	}
	records, _ := auditRepo.ListForEntity(ctx, expired.ID)
	var deletes int
	for _, rec := range records {
		if rec.Action == audit.ActionDelete {
			deletes++
		}
	}
	if deletes != 1 {
		t.Errorf("delete audit records = %d, want 1", deletes)
	}
}

func TestAPIKeyRepository_GetBySecretHash(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, actx := testActor()

	repo := NewAPIKeyRepository(db.GormDB())
	key := &domain.APIKey{ID: uuid.New(), Name: "lookup", SecretHash: uuid.New().String()}
	if err := repo.Create(ctx, nil, key, actx); err != nil {
		t.Fatalf("creating: %v", err)
	}

	got, err := repo.GetBySecretHash(ctx, key.SecretHash)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != key.ID {
		t.Error("wrong key returned")
	}

	used := time.Now().UTC().Truncate(time.Second)
	if err := repo.TouchLastUsed(ctx, key.ID, used); err != nil {
		t.Fatalf("touching: %v", err)
	}
	got, _ = repo.Get(ctx, key.ID)
	if got.LastUsedAt == nil {
		t.Error("last_used_at not set")
	}
}

// --- Entries ---

func TestEntryRepository_OrganizationScoping(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	authorID, actx := testActor()

	repo := NewEntryRepository(db.GormDB())
	orgA := createTestOrg(t, db, actx)
	orgB := createTestOrg(t, db, actx)

	for i, orgID := range []uuid.UUID{orgA.ID, orgA.ID, orgB.ID} {
		e := &domain.Entry{
			ID:             uuid.New(),
			OrganizationID: orgID,
			Slug:           fmt.Sprintf("post-%d-%s", i, uuid.New().String()[:8]),
			Title:          "Post",
			Status:         domain.EntryDraft,
			CreatedBy:      authorID,
		}
		if err := repo.Create(ctx, nil, e, actx); err != nil {
			t.Fatalf("creating entry: %v", err)
		}
	}

	entries, err := repo.ListForOrganization(ctx, orgA.ID)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("org A entries = %d, want 2", len(entries))
	}

	deleted, err := repo.DeleteAllForOrganization(ctx, nil, orgA.ID, actx)
	if err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	remaining, _ := repo.ListForOrganization(ctx, orgB.ID)
	if len(remaining) != 1 {
		t.Errorf("org B entries = %d, want 1 (must be untouched)", len(remaining))
	}
}

// --- Security Audit ---

func TestSecurityAuditRepository_RecordAndQuery(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	principalID := uuid.New()

	repo := NewSecurityAuditRepository(db.GormDB())
	err := repo.Record(ctx, audit.SecurityEvent{
		EventType:     audit.EventUnauthorizedAccess,
		PrincipalID:   principalID,
		PrincipalType: domain.PrincipalAccount,
		Message:       "denied organization.get",
		Source:        "organization.get",
	})
	if err != nil {
		t.Fatalf("recording: %v", err)
	}

	events, err := repo.Query(ctx, &principalID, 10)
	if err != nil {
		t.Fatalf("querying: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].EventType != audit.EventUnauthorizedAccess || events[0].Source != "organization.get" {
		t.Errorf("event = %+v", events[0])
	}
}

// --- Connection Health ---

func TestConnectionHealth(t *testing.T) {
	db := testDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
