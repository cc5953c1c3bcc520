package domain

import "time"

type Role string

const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleUser       Role = "USER"
)

// Requester is the already authenticated caller of a service operation.
type Requester struct {
	ID   int64
	Role Role
}

func (r Requester) IsSuperAdmin() bool {
	return r.Role == RoleSuperAdmin
}

// CanAccess reports whether the requester may act on a resource owned by ownerID.
func (r Requester) CanAccess(ownerID int64) bool {
	return r.IsSuperAdmin() || r.ID == ownerID
}

type PersonalAccessToken struct {
	ID        int64
	TokenHash string
	UserID    int64
	Role      Role
	Abilities string
	ExpiresAt *time.Time
}
