package service

import "strings"

// Roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Actor is the authenticated user performing a use case.
type Actor struct {
	ID   string
	Role string
	Name string
	// Token is the caller's bearer token, forwarded to the LMS when statistics are remote.
	Token string
}

// NormalizedRole returns the lower-cased role.
func (a Actor) NormalizedRole() string {
	return strings.ToLower(strings.TrimSpace(a.Role))
}

// IsStudent reports whether the actor is a student.
func (a Actor) IsStudent() bool { return a.NormalizedRole() == RoleStudent }

// IsTeacher reports whether the actor is a teacher.
func (a Actor) IsTeacher() bool { return a.NormalizedRole() == RoleTeacher }

// IsAdmin reports whether the actor is an administrator.
func (a Actor) IsAdmin() bool { return a.NormalizedRole() == RoleAdmin }

// IsStaff reports whether the actor may manage assignments.
func (a Actor) IsStaff() bool { return a.IsTeacher() || a.IsAdmin() }
