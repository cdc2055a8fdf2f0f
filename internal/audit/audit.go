// Package audit defines the audit trail types: the per-mutation Context that
// identifies the actor, the append-only Record paired 1:1 with every data
// mutation, and the SecurityEvent stream for denied authorization attempts.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quillhq/quill/internal/domain"
)

// Action is the mutation kind recorded against an entity.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Context identifies the actor behind a mutating operation. It is ephemeral —
// embedded into every Record, never persisted standalone.
//
// Exactly one of the three actor shapes must hold: a principal
// (PrincipalID + PrincipalType set), Anonymous, or System. System marks
// framework-internal mutations with no external caller.
type Context struct {
	PrincipalID   *uuid.UUID
	PrincipalType domain.PrincipalType
	Anonymous     bool
	System        bool
	Source        string // Subsystem or endpoint that triggered the mutation.
	Message       string // Free-form note, e.g. the reason for a system sweep.
}

// ByPrincipal builds a Context attributing the mutation to a principal.
func ByPrincipal(id uuid.UUID, pt domain.PrincipalType) Context {
	return Context{PrincipalID: &id, PrincipalType: pt}
}

// BySystem builds a Context for framework-internal mutations.
func BySystem(source string) Context {
	return Context{System: true, Source: source}
}

// ByAnonymous builds a Context for mutations on allow-anonymous paths.
func ByAnonymous(source string) Context {
	return Context{Anonymous: true, Source: source}
}

// WithSource returns a copy of the context with Source set.
func (c Context) WithSource(source string) Context {
	c.Source = source
	return c
}

// WithMessage returns a copy of the context with Message set.
func (c Context) WithMessage(msg string) Context {
	c.Message = msg
	return c
}

// Validate enforces the exactly-one-actor rule.
func (c Context) Validate() error {
	actors := 0
	if c.PrincipalID != nil {
		actors++
	}
	if c.Anonymous {
		actors++
	}
	if c.System {
		actors++
	}
	if actors != 1 {
		return fmt.Errorf("%w: audit context must name exactly one actor, got %d", domain.ErrValidation, actors)
	}
	return nil
}

// Record is one append-only audit trail entry. For every successful mutation
// on an audited collection exactly one Record exists with matching EntityID
// and Action, written in the same transaction as the mutation itself.
type Record struct {
	ID         uuid.UUID
	EntityID   uuid.UUID
	EntityType string
	Action     Action
	Context    Context
	CreatedAt  time.Time
}

// EventType classifies a security event.
type EventType string

const (
	EventUnauthorizedAccess EventType = "unauthorized_access"
)

// SecurityEvent is one entry in the append-only security audit stream.
// It is written outside the main request transaction, best-effort: a failed
// write never blocks the authorization decision already made.
type SecurityEvent struct {
	EventType     EventType
	PrincipalID   uuid.UUID
	PrincipalType domain.PrincipalType
	Message       string
	Source        string
	CreatedAt     time.Time
}
