package rbac

type Role string
type Entity string
type Operation string

const (
	RoleEmployee  Role = "employee"
	RoleResponder Role = "responder"
	RoleAdmin     Role = "admin"
)

const (
	EntityQuestion   Entity = "question"
	EntityAnswer     Entity = "answer"
	EntityComment    Entity = "comment"
	EntityVote       Entity = "vote"
	EntityDepartment Entity = "department"
	EntityProfile    Entity = "profile"
	EntityRole       Entity = "role"
	EntityUser       Entity = "user"
)

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Decide evaluates whether an authenticated identity holding the given role
// set may perform op on entity. owner reports whether the target row is the
// identity's own (its author for content, its vote row for votes).
// Unauthenticated requests never reach this function.
func Decide(roles []Role, entity Entity, op Operation, owner bool) bool {
	admin := HasRole(roles, RoleAdmin)

	switch entity {
	case EntityQuestion:
		switch op {
		case OpRead, OpCreate:
			return true
		case OpUpdate, OpDelete:
			return admin
		}
	case EntityAnswer:
		switch op {
		case OpRead:
			return true
		case OpCreate:
			return CanAnswer(roles)
		case OpUpdate, OpDelete:
			return owner || admin
		}
	case EntityComment:
		switch op {
		case OpRead, OpCreate:
			return true
		case OpDelete:
			return admin
		}
	case EntityVote:
		switch op {
		case OpRead, OpCreate, OpUpdate, OpDelete:
			return owner
		}
	case EntityDepartment:
		switch op {
		case OpRead:
			return true
		case OpCreate, OpUpdate, OpDelete:
			return admin
		}
	case EntityProfile:
		// The public projection is readable by anyone; the full profile
		// (email and role assignments) is the owner's or an admin's.
		switch op {
		case OpRead:
			return owner || admin
		case OpUpdate:
			return owner || admin
		}
	case EntityRole, EntityUser:
		return admin
	}
	return false
}

// CanAnswer reports whether the role set permits posting official answers.
func CanAnswer(roles []Role) bool {
	return HasRole(roles, RoleResponder) || HasRole(roles, RoleAdmin)
}

func HasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Normalize filters raw role names down to the known role set. Unknown
// names are dropped; an empty result still implies an authenticated
// employee-less identity and is treated as no grants.
func Normalize(raw []string) []Role {
	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		switch Role(r) {
		case RoleEmployee, RoleResponder, RoleAdmin:
			roles = append(roles, Role(r))
		}
	}
	return roles
}

// Strings converts a role set back to plain strings for token claims.
func Strings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
