package store

import (
	"context"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/model"
)

// InstanceQuery filters ListInstances. Zero values do not constrain.
type InstanceQuery struct {
	Status    model.InstanceStatus
	Initiator string
	Limit     int
}

// Store defines the persistence layer for approvals, opportunities and users.
// Lookups of missing records return an apperr NOT_FOUND error.
type Store interface {
	CreateInstance(ctx context.Context, in model.ApprovalInstance) error
	GetInstance(ctx context.Context, id string) (model.ApprovalInstance, error)
	// GetInstanceByTask returns the instance owning taskID.
	GetInstanceByTask(ctx context.Context, taskID string) (model.ApprovalInstance, error)
	ListInstances(ctx context.Context, q InstanceQuery) ([]model.ApprovalInstance, error)
	// UpdateInstance writes the instance header and its tasks when in.Version
	// matches the stored version, and returns the instance with the bumped
	// version. A stale version yields a CONFLICT error and changes nothing.
	UpdateInstance(ctx context.Context, in model.ApprovalInstance) (model.ApprovalInstance, error)
	// PendingTasks lists tasks the assignee can act on now.
	PendingTasks(ctx context.Context, assignee string) ([]model.PendingTask, error)

	ListOpportunities(ctx context.Context) ([]model.Opportunity, error)
	GetOpportunity(ctx context.Context, id string) (model.Opportunity, error)
	CreateOpportunity(ctx context.Context, o model.Opportunity) error
	UpdateOpportunity(ctx context.Context, o model.Opportunity) error
	DeleteOpportunity(ctx context.Context, id string) error

	CreateUser(ctx context.Context, u model.User) error
	// CreateFirstUser inserts u only while no user exists. The check and the
	// insert are atomic; once any user exists it returns FORBIDDEN.
	CreateFirstUser(ctx context.Context, u model.User) error
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CountUsers(ctx context.Context) (int64, error)

	AuditLog
	Ping(ctx context.Context) error
}

// AuditLog records mutations. Entries come back newest first.
type AuditLog interface {
	AppendAudit(ctx context.Context, e model.AuditEntry) error
	ListAudit(ctx context.Context, target string, limit int) ([]model.AuditEntry, error)
}

func errRegistrationClosed() error { return apperr.Forbidden("registration closed") }

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// auditLimit defaults a missing limit and caps oversized ones.
func auditLimit(limit int) int {
	if limit <= 0 {
		return defaultAuditLimit
	}
	return min(limit, maxAuditLimit)
}

// NewMemory is a helper to construct the in-memory implementation without importing it directly.
func NewMemory() Store {
	return NewMemoryStore()
}

type auditOverride struct {
	Store
	audit AuditLog
}

func (a auditOverride) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	return a.audit.AppendAudit(ctx, e)
}

func (a auditOverride) ListAudit(ctx context.Context, target string, limit int) ([]model.AuditEntry, error) {
	return a.audit.ListAudit(ctx, target, limit)
}

// WithAudit returns s with its audit trail redirected to audit.
func WithAudit(s Store, audit AuditLog) Store {
	if audit == nil {
		return s
	}
	return auditOverride{Store: s, audit: audit}
}
