package model

// Role is the caller's role as resolved from the session token.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Principal is the authenticated caller.
type Principal struct {
	ID         int  `json:"id"`
	Role       Role `json:"role"`
	HomebaseID int  `json:"homebase_id"`
}
