package repository

import (
	"context"
	"strconv"
	"time"

	cloak "github.com/goliatone/go-cloak"
	"github.com/uptrace/bun"
)

var _ cloak.Principal = &User{}

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	Username      string    `bun:"username,notnull,unique" json:"username"`
	Email         string    `bun:"email" json:"email,omitempty"`
	IsActive      bool      `bun:"is_active,notnull" json:"is_active"`
	IsStaff       bool      `bun:"is_staff,notnull" json:"is_staff"`
	IsSuperuser   bool      `bun:"is_superuser,notnull" json:"is_superuser"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	capability cloak.Capability `bun:"-"`
}

// PrincipalID implements cloak.Principal.
func (u *User) PrincipalID() string {
	return strconv.FormatInt(u.ID, 10)
}

// CloakCapability implements cloak.Principal.
func (u *User) CloakCapability() cloak.Capability {
	return u.capability
}

// AdminFlag implements cloak.Principal. Staff and superusers are admins.
func (u *User) AdminFlag() cloak.Flag {
	return cloak.FlagOf(u.IsStaff || u.IsSuperuser)
}

// CapabilityProvider attaches a cloak rule to loaded users.
type CapabilityProvider func(u *User) cloak.Capability

// CreateSchema creates the users table if it does not exist.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().
		Model((*User)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func field(u *User, f cloak.Field) (any, bool) {
	switch f {
	case cloak.FieldID:
		return u.ID, true
	case cloak.FieldEmail:
		return u.Email, true
	case cloak.FieldActive:
		return u.IsActive, true
	case cloak.FieldStaff:
		return u.IsStaff, true
	case cloak.FieldSuperuser:
		return u.IsSuperuser, true
	default:
		return nil, false
	}
}

var columns = map[cloak.Field]string{
	cloak.FieldID:        "id",
	cloak.FieldEmail:     "email",
	cloak.FieldActive:    "is_active",
	cloak.FieldStaff:     "is_staff",
	cloak.FieldSuperuser: "is_superuser",
}

func parseID(id string) (int64, bool) {
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
