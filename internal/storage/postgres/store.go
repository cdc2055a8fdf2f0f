package postgres

import (
	"sync"
)

// Store bundles the repositories over one DB connection, creating them
// lazily on first access. Both the PostgreSQL and SQLite drivers produce a
// *DB, so one Store type serves both backends.
type Store struct {
	db     *DB
	driver string

	mu            sync.Mutex
	organizations *OrganizationRepository
	accounts      *AccountRepository
	apiKeys       *APIKeyRepository
	roles         *RoleRepository
	entries       *EntryRepository
	auditTrail    *AuditRepository
	securityLog   *SecurityAuditRepository
}

// NewStore wraps an existing DB as a unified Store.
func NewStore(db *DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DB returns the underlying connection wrapper (transactions, health checks).
func (s *Store) DB() *DB {
	return s.db
}

// Driver returns the storage driver name ("sqlite" or "postgres").
func (s *Store) Driver() string {
	return s.driver
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Organizations() *OrganizationRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.organizations == nil {
		s.organizations = NewOrganizationRepository(s.db.GormDB())
	}
	return s.organizations
}

func (s *Store) Accounts() *AccountRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts == nil {
		s.accounts = NewAccountRepository(s.db.GormDB())
	}
	return s.accounts
}

func (s *Store) APIKeys() *APIKeyRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apiKeys == nil {
		s.apiKeys = NewAPIKeyRepository(s.db.GormDB())
	}
	return s.apiKeys
}

func (s *Store) Roles() *RoleRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roles == nil {
		s.roles = NewRoleRepository(s.db.GormDB())
	}
	return s.roles
}

func (s *Store) Entries() *EntryRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = NewEntryRepository(s.db.GormDB())
	}
	return s.entries
}

func (s *Store) Audit() *AuditRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditTrail == nil {
		s.auditTrail = NewAuditRepository(s.db.GormDB())
	}
	return s.auditTrail
}

func (s *Store) SecurityAudit() *SecurityAuditRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.securityLog == nil {
		s.securityLog = NewSecurityAuditRepository(s.db.GormDB())
	}
	return s.securityLog
}
