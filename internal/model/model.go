// Package model defines the core domain types for the class booking system.
package model

import "time"

// Role distinguishes ordinary members from administrators.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleAdmin
}

// User is an account that can hold reservations.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsAdmin reports whether the user may manage courses.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Summary returns the public projection of the user.
func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// Course is a scheduled group class with a fixed number of seats.
// Occupancy is only ever changed by the reservation engine.
type Course struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Instructor string    `json:"instructor"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   int       `json:"capacity"`
	Occupancy  int       `json:"occupancy"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Remaining returns the number of open seats.
func (c *Course) Remaining() int {
	return c.Capacity - c.Occupancy
}

// IsFull returns true when no seats remain.
func (c *Course) IsFull() bool {
	return c.Remaining() <= 0
}

// Summary returns the fields embedded in reservation payloads.
func (c *Course) Summary() *CourseSummary {
	return &CourseSummary{
		ID:         c.ID,
		Title:      c.Title,
		Instructor: c.Instructor,
		StartsAt:   c.StartsAt,
		Capacity:   c.Capacity,
		Occupancy:  c.Occupancy,
	}
}

// CourseSummary is the course projection attached to a reservation.
type CourseSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Instructor string    `json:"instructor"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   int       `json:"capacity"`
	Occupancy  int       `json:"occupancy"`
}

// UserSummary is the user projection attached to a reservation.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Reservation links a user to a seat in a course. It is created by
// admission and destroyed by cancellation; it is never updated.
type Reservation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`

	Course *CourseSummary `json:"course,omitempty"`
	User   *UserSummary   `json:"user,omitempty"`
}

// CourseUpdate carries the admin-editable course fields. Nil fields are
// left untouched.
type CourseUpdate struct {
	Title      *string
	Instructor *string
	StartsAt   *time.Time
	Capacity   *int
}

// ─── Request / response payloads ──────────────────────────────────────────────

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest is the payload for obtaining a token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// CreateCourseRequest is the payload for scheduling a new class.
type CreateCourseRequest struct {
	Title      string    `json:"title" validate:"required,min=2,max=100"`
	Instructor string    `json:"instructor" validate:"required,min=2,max=100"`
	StartsAt   time.Time `json:"starts_at" validate:"required"`
	Capacity   int       `json:"capacity" validate:"required,min=1,max=100000"`
}

// UpdateCourseRequest is the payload for editing a class.
type UpdateCourseRequest struct {
	Title      *string    `json:"title,omitempty" validate:"omitempty,min=2,max=100"`
	Instructor *string    `json:"instructor,omitempty" validate:"omitempty,min=2,max=100"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	Capacity   *int       `json:"capacity,omitempty" validate:"omitempty,min=1,max=100000"`
}

// ToUpdate converts the request into a CourseUpdate.
func (r UpdateCourseRequest) ToUpdate() CourseUpdate {
	return CourseUpdate{
		Title:      r.Title,
		Instructor: r.Instructor,
		StartsAt:   r.StartsAt,
		Capacity:   r.Capacity,
	}
}

// ReserveRequest is the payload for booking a seat.
type ReserveRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error          string   `json:"error"`
	HoursRemaining *float64 `json:"hours_remaining,omitempty"`
}

// BookingResult summarises the outcome of a single admission attempt.
// Used by the concurrent test harnesses.
type BookingResult struct {
	UserID  string
	Success bool
	Error   error
}
