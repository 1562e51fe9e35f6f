// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxUnameLen = 36

var (
	ErrUnameEmpty   = errors.New("uname empty")
	ErrUnameTooLong = errors.New("uname too long")
)

type Role string

const (
	RoleMember Role = "member"
	RoleMod    Role = "mod"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Identity is a resolved account. Unique process-wide by Uname;
// immutable once resolved.
type Identity struct {
	ID    int64  `json:"id"`
	Uname string `json:"uname"`
	Role  Role   `json:"role"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewIdentity(id int64, uname string, role Role) (*Identity, error) {
	if len(uname) == 0 {
		return nil, ErrUnameEmpty
	}
	if len(uname) > MaxUnameLen {
		return nil, ErrUnameTooLong
	}
	return &Identity{ID: id, Uname: uname, Role: role}, nil
}

// Author is the uname/role pair stamped on a message.
type Author struct {
	Uname string `json:"uname"`
	Role  Role   `json:"role"`
}

func (i *Identity) Author() Author {
	return Author{Uname: i.Uname, Role: i.Role}
}
