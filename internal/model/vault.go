package model

import "time"

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

var MemberRoles = []string{RoleOwner, RoleAdmin, RoleMember, RoleViewer}

type Vault struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OwnerID     int64     `json:"owner"`
	OwnerName   string    `json:"owner_name"`
	IsPublic    bool      `json:"is_public"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type VaultMember struct {
	ID        int64     `json:"id"`
	VaultID   string    `json:"vault"`
	UserID    int64     `json:"user"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`
}

// VaultDetail is a Vault with its member list.
type VaultDetail struct {
	Vault
	Members []VaultMember `json:"members"`
}
