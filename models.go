package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserType is a row of the account kind catalogue. Its name decides the
// Role, see ParseRole.
type UserType struct {
	bun.BaseModel `bun:"table:user_types,alias:ut"`
	ID            int64  `bun:"user_type_id,pk,autoincrement" json:"user_type_id"`
	Name          string `bun:"type_name,notnull,unique" json:"type_name"`
}

func (t *UserType) Role() Role {
	if t == nil {
		return RoleUnknown
	}
	return ParseRole(t.Name)
}

// Account is a login identity.
type Account struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	UserTypeID    int64      `bun:"user_type_id,notnull" json:"user_type_id,omitempty"`
	UserType      *UserType  `bun:"rel:belongs-to,join:user_type_id=user_type_id" json:"user_type,omitempty"`
	IsActive      bool       `bun:"is_active,notnull" json:"is_active"`
	LoggedInAt    *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Role resolves the account role. The UserType relation must be loaded,
// otherwise the account is treated as RoleUnknown.
func (a *Account) Role() Role {
	if a == nil {
		return RoleUnknown
	}
	return a.UserType.Role()
}

// Identity snapshots the account for a session.
func (a *Account) Identity() Identity {
	return Identity{
		AccountID: a.ID,
		Username:  a.Username,
		Role:      a.Role(),
	}
}

// StaffProfile is a faculty directory record. AccountID is the optional,
// unique link to the account that owns it.
type StaffProfile struct {
	bun.BaseModel `bun:"table:faculty,alias:fac"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     *uuid.UUID `bun:"user_id,nullzero,unique,type:uuid" json:"user_id,omitempty"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	Department    string     `bun:"department" json:"department,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

func (p *StaffProfile) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Linked reports whether the profile is owned by an account.
func (p *StaffProfile) Linked() bool {
	return p.AccountID != nil && *p.AccountID != uuid.Nil
}

func (p StaffProfile) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.Email, is.Email),
	)
}
