package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleKUA      UserRole = "KUA"
	RoleOperator UserRole = "OPERATOR_DUKCAPIL"
	RoleVerifier UserRole = "VERIFIKATOR_DUKCAPIL"
	RoleAdmin    UserRole = "ADMIN"
)

// OperatorClass reports whether the role may work the data-entry stage.
// Verifiers share the operator interface (unified-interface policy).
func (r UserRole) OperatorClass() bool {
	return r == RoleOperator || r == RoleVerifier
}

// VerifierClass reports whether the role may claim and decide verification.
func (r UserRole) VerifierClass() bool {
	return r == RoleVerifier
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Kecamatan    *string    `db:"kecamatan" json:"kecamatan,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
