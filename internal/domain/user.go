package domain

type User struct {
	ID    int32  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Role string

const (
	RoleMember    Role = "MEMBER"
	RoleLibrarian Role = "LIBRARIAN"
	RoleAdmin     Role = "ADMIN"
	RoleSystem    Role = "SYSTEM"
)

// Actor is the authenticated identity on whose behalf an operation runs.
// It is always passed explicitly; nothing reads identity from ambient state.
type Actor struct {
	UserID int32 `json:"user_id"`
	Role   Role  `json:"role"`
}

// SystemActor is used by the background sweepers.
var SystemActor = Actor{Role: RoleSystem}

func NewMember(userID int32) Actor {
	return Actor{UserID: userID, Role: RoleMember}
}

func NewLibrarian(userID int32) Actor {
	return Actor{UserID: userID, Role: RoleLibrarian}
}

// IsStaff reports whether the actor may perform administrative lending operations.
func (a Actor) IsStaff() bool {
	switch a.Role {
	case RoleLibrarian, RoleAdmin, RoleSystem:
		return true
	default:
		return false
	}
}
