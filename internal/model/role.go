package model

// UserRole is the onboarding answer to "who are you?".
type UserRole int8

const (
	UserRoleStudent = UserRole(iota)
	UserRoleTeacher
)

func ParseUserRole(s string) UserRole {
	switch s {
	case "teacher":
		return UserRoleTeacher
	default:
		return UserRoleStudent
	}
}

func (r UserRole) String() string {
	switch r {
	case UserRoleTeacher:
		return "teacher"
	default:
		return "student"
	}
}
