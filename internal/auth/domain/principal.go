package domain

import "strings"

// RoleServiceRole is the Supabase role carried by the service key.
const RoleServiceRole = "service_role"

// Principal is the caller identified by a verified Supabase access token.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (p *Principal) IsService() bool {
	return p.Role == RoleServiceRole
}

// CanActOn reports whether p may manage the given mailbox.
func (p *Principal) CanActOn(mailbox string) bool {
	if p.IsService() {
		return true
	}
	return p.Email != "" && strings.EqualFold(strings.TrimSpace(mailbox), p.Email)
}
