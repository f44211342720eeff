package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/fitreserve/internal/clock"
	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
	"github.com/Shivanand-hulikatti/fitreserve/internal/repository"
)

// DefaultCancellationWindow is the minimum lead time before class start
// below which a reservation can no longer be cancelled.
const DefaultCancellationWindow = 2 * time.Hour

// ReservationStore is what the reservation engine needs from persistence.
type ReservationStore interface {
	repository.TxRunner
	repository.ReservationStore
}

// ReservationService is the admission and cancellation engine. Every
// occupancy change happens inside one unit of work that holds the course
// lock, so capacity is never oversold and a failure leaves nothing behind.
type ReservationService struct {
	store  ReservationStore
	clock  clock.Clock
	window time.Duration
	log    zerolog.Logger
}

// NewReservationService constructs a ReservationService. A zero window
// selects DefaultCancellationWindow.
func NewReservationService(store ReservationStore, clk clock.Clock, window time.Duration, log zerolog.Logger) *ReservationService {
	if clk == nil {
		clk = clock.System()
	}
	if window == 0 {
		window = DefaultCancellationWindow
	}
	return &ReservationService{
		store:  store,
		clock:  clk,
		window: window,
		log:    log.With().Str("component", "reservations").Logger(),
	}
}

// Reserve books a seat in courseID for userID and returns the reservation
// enriched with the course summary as of the admission.
func (s *ReservationService) Reserve(ctx context.Context, userID, courseID string) (*model.Reservation, error) {
	userID, courseID = strings.TrimSpace(userID), strings.TrimSpace(courseID)
	if userID == "" {
		return nil, invalidInput("user id is required")
	}
	if courseID == "" {
		return nil, invalidInput("course id is required")
	}

	var reservation *model.Reservation
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		course, err := tx.LockCourse(ctx, courseID)
		if err != nil {
			return err
		}

		dup, err := tx.HasReservation(ctx, userID, courseID)
		if err != nil {
			return err
		}
		if dup {
			return ErrDuplicateReservation
		}

		if course.IsFull() {
			return ErrCapacityExceeded
		}

		r := &model.Reservation{
			ID:        uuid.NewString(),
			UserID:    userID,
			CourseID:  courseID,
			CreatedAt: s.clock.Now().UTC(),
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateReservation
			}
			return err
		}

		course.Occupancy++
		if err := tx.SetOccupancy(ctx, courseID, course.Occupancy); err != nil {
			return err
		}

		r.Course = course.Summary()
		reservation = r
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "reserve", courseID, userID)
	}

	s.log.Info().
		Str("reservation_id", reservation.ID).
		Str("course_id", courseID).
		Str("user_id", userID).
		Int("occupancy", reservation.Course.Occupancy).
		Int("capacity", reservation.Course.Capacity).
		Msg("seat reserved")
	return reservation, nil
}

// Cancel removes userID's reservation and frees its seat.
//
// The past-class check must run before the window check: the distance to
// the start is absolute, so a class that began an hour ago would otherwise
// look like one starting in an hour.
func (s *ReservationService) Cancel(ctx context.Context, reservationID, userID string) error {
	reservationID, userID = strings.TrimSpace(reservationID), strings.TrimSpace(userID)
	if reservationID == "" || userID == "" {
		return ErrNotFound
	}

	var courseID string
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		r, err := tx.GetOwnedReservation(ctx, reservationID, userID)
		if err != nil {
			return err
		}
		courseID = r.CourseID

		now := s.clock.Now()
		if err := s.checkCancellable(r.Course.StartsAt, now); err != nil {
			return err
		}

		course, err := tx.LockCourse(ctx, r.CourseID)
		if err != nil {
			return err
		}
		// The start time may have moved between the read and the lock.
		if !course.StartsAt.Equal(r.Course.StartsAt) {
			if err := s.checkCancellable(course.StartsAt, now); err != nil {
				return err
			}
		}

		if err := tx.DeleteReservation(ctx, r.ID); err != nil {
			return err
		}

		next := course.Occupancy - 1
		if next < 0 {
			s.log.Warn().
				Str("course_id", course.ID).
				Str("reservation_id", r.ID).
				Int("occupancy", course.Occupancy).
				Msg("occupancy would drop below zero on cancellation; clamped to 0")
			next = 0
		}
		return tx.SetOccupancy(ctx, course.ID, next)
	})
	if err != nil {
		return s.fail(err, "cancel", courseID, userID)
	}

	s.log.Info().
		Str("reservation_id", reservationID).
		Str("course_id", courseID).
		Str("user_id", userID).
		Msg("reservation cancelled")
	return nil
}

// checkCancellable applies the timing policy for a class starting at
// startsAt, evaluated at now.
func (s *ReservationService) checkCancellable(startsAt, now time.Time) error {
	hours := clock.HoursBetween(startsAt, now)
	if startsAt.Before(now) {
		return ErrPastClass
	}
	if hours < s.window.Hours() {
		return &CancellationWindowError{HoursRemaining: hours, Window: s.window.Hours()}
	}
	return nil
}

// ListForUser returns the user's reservations, newest first.
func (s *ReservationService) ListForUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	list, err := s.store.ListReservationsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return list, nil
}

// Get returns a reservation visible to actor: its owner or an admin.
// Anyone else gets ErrNotFound.
func (s *ReservationService) Get(ctx context.Context, reservationID string, actor *model.User) (*model.Reservation, error) {
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if actor == nil || (r.UserID != actor.ID && !actor.IsAdmin()) {
		return nil, ErrNotFound
	}
	return r, nil
}

// fail logs and returns err: business outcomes unchanged, anything else
// wrapped as an infrastructure failure.
func (s *ReservationService) fail(err error, op, courseID, userID string) error {
	if IsBusinessError(err) {
		s.log.Debug().Err(err).Str("op", op).Str("course_id", courseID).Str("user_id", userID).Msg("rejected")
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
