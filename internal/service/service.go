// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/fitreserve/internal/clock"
	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
	"github.com/Shivanand-hulikatti/fitreserve/internal/repository"
)

const maxCapacity = 100_000

// CourseStore is what CourseService needs from persistence.
type CourseStore interface {
	repository.TxRunner
	repository.CourseStore
}

// CourseService orchestrates course reads and admin writes.
type CourseService struct {
	courses CourseStore
	clock   clock.Clock
	log     zerolog.Logger
}

// NewCourseService constructs a CourseService with its dependencies.
func NewCourseService(courses CourseStore, clk clock.Clock, log zerolog.Logger) *CourseService {
	if clk == nil {
		clk = clock.System()
	}
	return &CourseService{
		courses: courses,
		clock:   clk,
		log:     log.With().Str("component", "courses").Logger(),
	}
}

// ListCourses returns all courses ordered by start time.
func (s *CourseService) ListCourses(ctx context.Context) ([]model.Course, error) {
	courses, err := s.courses.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// GetCourse returns a single course by ID.
func (s *CourseService) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	course, err := s.courses.GetCourse(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return course, nil
}

// CreateCourse validates the request and stores a new course with no seats
// taken.
func (s *CourseService) CreateCourse(ctx context.Context, req model.CreateCourseRequest) (*model.Course, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Instructor = strings.TrimSpace(req.Instructor)
	if req.Title == "" {
		return nil, invalidInput("title is required")
	}
	if req.Instructor == "" {
		return nil, invalidInput("instructor is required")
	}
	if req.StartsAt.IsZero() {
		return nil, invalidInput("starts_at is required")
	}
	if err := checkCapacity(req.Capacity); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	course := &model.Course{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Instructor: req.Instructor,
		StartsAt:   req.StartsAt.UTC(),
		Capacity:   req.Capacity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.courses.CreateCourse(ctx, course); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}

	s.log.Info().Str("course_id", course.ID).Str("title", course.Title).
		Int("capacity", course.Capacity).Time("starts_at", course.StartsAt).Msg("course created")
	return course, nil
}

// UpdateCourse applies upd under the course lock so a concurrent admission
// cannot slip in between the occupancy check and the write.
func (s *CourseService) UpdateCourse(ctx context.Context, id string, upd model.CourseUpdate) (*model.Course, error) {
	if upd.Title != nil {
		t := strings.TrimSpace(*upd.Title)
		if t == "" {
			return nil, invalidInput("title must not be empty")
		}
		upd.Title = &t
	}
	if upd.Instructor != nil {
		i := strings.TrimSpace(*upd.Instructor)
		if i == "" {
			return nil, invalidInput("instructor must not be empty")
		}
		upd.Instructor = &i
	}
	if upd.StartsAt != nil && upd.StartsAt.IsZero() {
		return nil, invalidInput("starts_at must not be empty")
	}
	if upd.Capacity != nil {
		if err := checkCapacity(*upd.Capacity); err != nil {
			return nil, err
		}
	}

	var updated *model.Course
	err := s.courses.WithTx(ctx, func(tx repository.Tx) error {
		course, err := tx.LockCourse(ctx, id)
		if err != nil {
			return err
		}
		if upd.Title != nil {
			course.Title = *upd.Title
		}
		if upd.Instructor != nil {
			course.Instructor = *upd.Instructor
		}
		if upd.StartsAt != nil {
			course.StartsAt = upd.StartsAt.UTC()
		}
		if upd.Capacity != nil {
			if *upd.Capacity < course.Occupancy {
				return ErrCapacityBelowOccupancy
			}
			course.Capacity = *upd.Capacity
		}
		course.UpdatedAt = s.clock.Now().UTC()
		if err := tx.UpdateCourse(ctx, course); err != nil {
			return err
		}
		updated = course
		return nil
	})
	if err != nil {
		if IsBusinessError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update course: %w", err)
	}

	s.log.Info().Str("course_id", id).Int("capacity", updated.Capacity).Msg("course updated")
	return updated, nil
}

// DeleteCourse removes the course together with its reservations.
func (s *CourseService) DeleteCourse(ctx context.Context, id string) error {
	if err := s.courses.DeleteCourse(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete course: %w", err)
	}
	s.log.Info().Str("course_id", id).Msg("course deleted")
	return nil
}

func checkCapacity(n int) error {
	if n <= 0 {
		return invalidInput("capacity must be a positive integer")
	}
	if n > maxCapacity {
		return invalidInput(fmt.Sprintf("capacity cannot exceed %d", maxCapacity))
	}
	return nil
}
