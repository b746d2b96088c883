package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// RoleAdmin grants access to administrative endpoints
	RoleAdmin = "Admin"
	// RoleUser is assigned to every directory account on first login
	RoleUser = "User"
)

// AuditActionGrant is the only ledger action, assignments are additive
const AuditActionGrant = "grant"

// Account is a local or directory backed login
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	FullName      string     `bun:"full_name" json:"full_name,omitempty"`
	Title         string     `bun:"title" json:"title,omitempty"`
	IsDomainUser  bool       `bun:"is_domain_user,notnull,default:false" json:"is_domain_user"`
	IsSuperAdmin  bool       `bun:"is_super_admin,notnull,default:false" json:"is_super_admin"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role is a named permission set
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rl"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string    `bun:"name,notnull,unique" json:"name,omitempty"`
	Description   string    `bun:"description" json:"description,omitempty"`
}

// RoleAssignment links an account to a role, at most once
type RoleAssignment struct {
	bun.BaseModel `bun:"table:role_assignments,alias:ra"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid,unique:account_role" json:"account_id"`
	RoleID        uuid.UUID  `bun:"role_id,notnull,type:uuid,unique:account_role" json:"role_id"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// RoleAssignmentAudit is an append only record of a ledger change
type RoleAssignmentAudit struct {
	bun.BaseModel `bun:"table:role_assignment_audits,alias:raa"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"account_id"`
	RoleID        uuid.UUID  `bun:"role_id,notnull,type:uuid" json:"role_id"`
	AdminID       uuid.UUID  `bun:"admin_id,notnull,type:uuid" json:"admin_id"`
	Action        string     `bun:"action,notnull" json:"action"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// DefaultRoles are seeded by setup
func DefaultRoles() []*Role {
	return []*Role{
		{Name: RoleAdmin, Description: "Has full access to the system"},
		{Name: RoleUser, Description: "Can access basic features"},
	}
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now()
	if record.CreatedAt == nil {
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = &now
	}
}
