package domain

// Role is the access tier of an operator. Admin and Manager are elevated;
// Agent permissions depend on lead assignment.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
)

// Elevated reports whether the role bypasses assignment checks.
func (r Role) Elevated() bool {
	return r == RoleAdmin || r == RoleManager
}

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleAgent:
		return true
	}
	return false
}

// Actor is the operator performing an action. Every engine call receives the
// actor explicitly; nothing reads identity from ambient state.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
