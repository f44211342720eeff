// Package repository implements persistence for users, courses and
// reservations.
//
// Three backends satisfy Store:
//
//	PostgresStore  pgx, row locks via SELECT … FOR UPDATE (production)
//	SQLiteStore    modernc.org/sqlite, one connection + BEGIN IMMEDIATE (single node)
//	MemoryStore    maps + a mutex per course id (tests, demos)
//
// The reservation engine only ever mutates occupancy through a Tx obtained
// from WithTx, so the locking mechanism is a backend detail while the
// observable contract stays the same: mutations of one course's occupancy
// are serialised and a failed unit of work leaves no trace.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a write violates a uniqueness constraint
// (user email, or one reservation per user and course).
var ErrDuplicate = errors.New("duplicate record")

// CourseStore is the read/write surface for course records outside the
// reservation engine.
type CourseStore interface {
	CreateCourse(ctx context.Context, c *model.Course) error
	// ListCourses returns every course ordered by start time ascending.
	ListCourses(ctx context.Context) ([]model.Course, error)
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	// DeleteCourse removes the course and, by cascade, its reservations.
	DeleteCourse(ctx context.Context, id string) error
}

// UserStore persists accounts.
type UserStore interface {
	// CreateUser returns ErrDuplicate when the email is already taken.
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// ReservationStore serves reservation read paths.
type ReservationStore interface {
	// ListReservationsByUser returns the user's reservations with their
	// course summary, newest first.
	ListReservationsByUser(ctx context.Context, userID string) ([]model.Reservation, error)
	// GetReservation returns a reservation with course and user summaries.
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
}

// Tx is a unit of work. Everything done through it is committed together
// or not at all.
//
// Lock order is always course row first, reservation row second. Reads
// that happen before LockCourse take no locks.
type Tx interface {
	// LockCourse returns the course and holds an exclusive lock on it until
	// the unit of work ends. ErrNotFound if it does not exist.
	LockCourse(ctx context.Context, courseID string) (*model.Course, error)
	HasReservation(ctx context.Context, userID, courseID string) (bool, error)
	// GetOwnedReservation returns the reservation (with course summary) only
	// if it belongs to userID; otherwise ErrNotFound.
	GetOwnedReservation(ctx context.Context, reservationID, userID string) (*model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	// DeleteReservation returns ErrNotFound when no row was removed.
	DeleteReservation(ctx context.Context, reservationID string) error
	SetOccupancy(ctx context.Context, courseID string, occupancy int) error
	// UpdateCourse writes title, instructor, start, capacity and updated_at.
	// Occupancy is not touched.
	UpdateCourse(ctx context.Context, c *model.Course) error
}

// TxRunner runs fn inside a unit of work. If fn returns an error the unit
// is rolled back and that error is returned unchanged.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Store is the full persistence surface.
type Store interface {
	CourseStore
	UserStore
	ReservationStore
	TxRunner
	Ping(ctx context.Context) error
	Close()
}
