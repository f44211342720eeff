package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/fitreserve/internal/clock"
	"github.com/Shivanand-hulikatti/fitreserve/internal/database"
	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
	"github.com/Shivanand-hulikatti/fitreserve/internal/repository"
	"github.com/Shivanand-hulikatti/fitreserve/internal/service"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store        repository.Store
	reservations *service.ReservationService
	courses      *service.CourseService
}

func stores() map[string]func(t *testing.T) repository.Store {
	return map[string]func(t *testing.T) repository.Store{
		"memory": func(t *testing.T) repository.Store {
			return repository.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) repository.Store {
			db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "svc.db"))
			require.NoError(t, err)
			s := repository.NewSQLiteStore(db)
			t.Cleanup(s.Close)
			return s
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, open := range stores() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			clk := clock.Fixed(now)
			fn(t, &fixture{
				store:        s,
				reservations: service.NewReservationService(s, clk, 2*time.Hour, zerolog.Nop()),
				courses:      service.NewCourseService(s, clk, zerolog.Nop()),
			})
		})
	}
}

func (f *fixture) course(t *testing.T, startsIn time.Duration, capacity int) *model.Course {
	t.Helper()
	c, err := f.courses.CreateCourse(context.Background(), model.CreateCourseRequest{
		Title:      "HIIT",
		Instructor: "Coach Kim",
		StartsAt:   now.Add(startsIn),
		Capacity:   capacity,
	})
	require.NoError(t, err)
	return c
}

// courseAt inserts a course directly, bypassing validation, so tests can
// place classes in the past.
func (f *fixture) courseAt(t *testing.T, startsAt time.Time, capacity int) *model.Course {
	t.Helper()
	c := &model.Course{
		ID:         uuid.NewString(),
		Title:      "Yoga",
		Instructor: "Coach Lee",
		StartsAt:   startsAt,
		Capacity:   capacity,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.store.CreateCourse(context.Background(), c))
	return c
}

func (f *fixture) user(t *testing.T) *model.User {
	t.Helper()
	u := &model.User{
		ID:           uuid.NewString(),
		Name:         "Member",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Role:         model.RoleMember,
		CreatedAt:    now,
	}
	require.NoError(t, f.store.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) occupancy(t *testing.T, courseID string) int {
	t.Helper()
	c, err := f.store.GetCourse(context.Background(), courseID)
	require.NoError(t, err)
	return c.Occupancy
}

// =============================================================================
// ADMISSION
// =============================================================================

func TestReserve_Success(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 3)
		u := f.user(t)

		r, err := f.reservations.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, r.ID)
		assert.Equal(t, u.ID, r.UserID)
		assert.Equal(t, c.ID, r.CourseID)
		assert.True(t, r.CreatedAt.Equal(now))
		require.NotNil(t, r.Course)
		assert.Equal(t, 1, r.Course.Occupancy)
		assert.Equal(t, 3, r.Course.Capacity)

		assert.Equal(t, 1, f.occupancy(t, c.ID))
	})
}

func TestReserve_CapacityReachedOnNthAdmission(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		const capacity = 4
		c := f.course(t, 24*time.Hour, capacity)

		for i := 0; i < capacity; i++ {
			_, err := f.reservations.Reserve(ctx, f.user(t).ID, c.ID)
			require.NoError(t, err, "admission %d", i+1)
		}

		_, err := f.reservations.Reserve(ctx, f.user(t).ID, c.ID)
		assert.ErrorIs(t, err, service.ErrCapacityExceeded)
		assert.Equal(t, capacity, f.occupancy(t, c.ID))
	})
}

func TestReserve_Duplicate(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 5)
		u := f.user(t)

		_, err := f.reservations.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)

		_, err = f.reservations.Reserve(ctx, u.ID, c.ID)
		assert.ErrorIs(t, err, service.ErrDuplicateReservation)
		assert.Equal(t, 1, f.occupancy(t, c.ID))
	})
}

func TestReserve_DuplicateWinsOverFullCourse(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 1)
		u := f.user(t)

		_, err := f.reservations.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)

		_, err = f.reservations.Reserve(ctx, u.ID, c.ID)
		assert.ErrorIs(t, err, service.ErrDuplicateReservation)
	})
}

func TestReserve_UnknownCourse(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		_, err := f.reservations.Reserve(context.Background(), f.user(t).ID, uuid.NewString())
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestReserve_UnknownUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		c := f.course(t, 24*time.Hour, 2)
		_, err := f.reservations.Reserve(context.Background(), uuid.NewString(), c.ID)
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.Equal(t, 0, f.occupancy(t, c.ID))
	})
}

func TestReserve_MissingIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		_, err := f.reservations.Reserve(context.Background(), "", "x")
		assert.ErrorIs(t, err, service.ErrInvalidInput)
		_, err = f.reservations.Reserve(context.Background(), "x", "  ")
		assert.ErrorIs(t, err, service.ErrInvalidInput)
	})
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_RestoresOccupancy(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 2)
		u := f.user(t)

		r, err := f.reservations.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)
		require.Equal(t, 1, f.occupancy(t, c.ID))

		require.NoError(t, f.reservations.Cancel(ctx, r.ID, u.ID))
		assert.Equal(t, 0, f.occupancy(t, c.ID))

		_, err = f.store.GetReservation(ctx, r.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		// The seat is free again and the same user may book anew.
		_, err = f.reservations.Reserve(ctx, u.ID, c.ID)
		assert.NoError(t, err)
	})
}

func TestCancel_TimingPolicy(t *testing.T) {
	tests := []struct {
		name    string
		offset  time.Duration
		wantErr error
	}{
		{name: "well ahead", offset: 24 * time.Hour},
		{name: "just outside window", offset: 2*time.Hour + 6*time.Minute},
		{name: "exactly at window", offset: 2 * time.Hour},
		{name: "inside window", offset: time.Hour + 54*time.Minute, wantErr: service.ErrCancellationWindowClosed},
		{name: "about to start", offset: time.Minute, wantErr: service.ErrCancellationWindowClosed},
		{name: "started an hour ago", offset: -time.Hour, wantErr: service.ErrPastClass},
		{name: "started three hours ago", offset: -3 * time.Hour, wantErr: service.ErrPastClass},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forEachStore(t, func(t *testing.T, f *fixture) {
				ctx := context.Background()
				// Book while the class is still far away, then cancel at
				// the offset under test.
				c := f.courseAt(t, now.Add(tt.offset), 3)
				u := f.user(t)
				early := service.NewReservationService(f.store, clock.Fixed(c.StartsAt.Add(-48*time.Hour)), 2*time.Hour, zerolog.Nop())
				r, err := early.Reserve(ctx, u.ID, c.ID)
				require.NoError(t, err)

				err = f.reservations.Cancel(ctx, r.ID, u.ID)
				if tt.wantErr == nil {
					require.NoError(t, err)
					assert.Equal(t, 0, f.occupancy(t, c.ID))
					return
				}
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 1, f.occupancy(t, c.ID), "rejected cancellation leaves state unchanged")
				_, err = f.store.GetReservation(ctx, r.ID)
				assert.NoError(t, err)
			})
		})
	}
}

func TestCancel_WindowErrorCarriesHoursRemaining(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.courseAt(t, now.Add(90*time.Minute), 3)
		u := f.user(t)
		early := service.NewReservationService(f.store, clock.Fixed(now.Add(-24*time.Hour)), 2*time.Hour, zerolog.Nop())
		r, err := early.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)

		err = f.reservations.Cancel(ctx, r.ID, u.ID)
		var werr *service.CancellationWindowError
		require.True(t, errors.As(err, &werr))
		assert.InDelta(t, 1.5, werr.HoursRemaining, 1e-9)
		assert.InDelta(t, 2.0, werr.Window, 1e-9)
	})
}

func TestCancel_NotOwner(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 3)
		owner, other := f.user(t), f.user(t)

		r, err := f.reservations.Reserve(ctx, owner.ID, c.ID)
		require.NoError(t, err)

		err = f.reservations.Cancel(ctx, r.ID, other.ID)
		assert.ErrorIs(t, err, service.ErrNotFound)
		assert.Equal(t, 1, f.occupancy(t, c.ID))
	})
}

func TestCancel_UnknownReservation(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		err := f.reservations.Cancel(context.Background(), uuid.NewString(), f.user(t).ID)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

func TestCancel_Twice(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 3)
		u := f.user(t)
		r, err := f.reservations.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)

		require.NoError(t, f.reservations.Cancel(ctx, r.ID, u.ID))
		assert.ErrorIs(t, f.reservations.Cancel(ctx, r.ID, u.ID), service.ErrNotFound)
		assert.Equal(t, 0, f.occupancy(t, c.ID))
	})
}

func TestCancel_ClampsOccupancyAtZero(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		var buf bytes.Buffer
		svc := service.NewReservationService(f.store, clock.Fixed(now), 2*time.Hour, zerolog.New(&buf))

		c := f.course(t, 24*time.Hour, 3)
		u := f.user(t)
		r, err := svc.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)

		// Counter drifted below the live reservation count.
		require.NoError(t, f.store.WithTx(ctx, func(tx repository.Tx) error {
			if _, err := tx.LockCourse(ctx, c.ID); err != nil {
				return err
			}
			return tx.SetOccupancy(ctx, c.ID, 0)
		}))
		buf.Reset()

		require.NoError(t, svc.Cancel(ctx, r.ID, u.ID))
		assert.Equal(t, 0, f.occupancy(t, c.ID))
		assert.Contains(t, buf.String(), `"level":"warn"`)
		assert.Contains(t, buf.String(), `"course_id":"`+c.ID+`"`)
		assert.Contains(t, buf.String(), "clamped to 0")
	})
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestReserve_LastSeatRace(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 1)
		a, b := f.user(t), f.user(t)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, u := range []*model.User{a, b} {
			wg.Add(1)
			go func(i int, userID string) {
				defer wg.Done()
				_, errs[i] = f.reservations.Reserve(ctx, userID, c.ID)
			}(i, u.ID)
		}
		wg.Wait()

		var ok, full int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrCapacityExceeded):
				full++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, full)
		assert.Equal(t, 1, f.occupancy(t, c.ID))
	})
}

func TestReserve_ManyConcurrentMembers(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		const capacity, members = 10, 100
		c := f.course(t, 24*time.Hour, capacity)

		users := make([]*model.User, members)
		for i := range users {
			users[i] = f.user(t)
		}

		results := make(chan model.BookingResult, members)
		var wg sync.WaitGroup
		for _, u := range users {
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				_, err := f.reservations.Reserve(ctx, userID, c.ID)
				results <- model.BookingResult{UserID: userID, Success: err == nil, Error: err}
			}(u.ID)
		}
		wg.Wait()
		close(results)

		var ok int
		for res := range results {
			if res.Success {
				ok++
				continue
			}
			assert.ErrorIs(t, res.Error, service.ErrCapacityExceeded, "user %s", res.UserID)
		}
		assert.Equal(t, capacity, ok)
		assert.Equal(t, capacity, f.occupancy(t, c.ID))

		listed := 0
		for _, u := range users {
			list, err := f.reservations.ListForUser(ctx, u.ID)
			require.NoError(t, err)
			listed += len(list)
		}
		assert.Equal(t, capacity, listed, "occupancy matches reservation count")
	})
}

func TestReserve_SameUserConcurrently(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 10)
		u := f.user(t)

		var ok, dup atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.reservations.Reserve(ctx, u.ID, c.ID)
				switch {
				case err == nil:
					ok.Add(1)
				case errors.Is(err, service.ErrDuplicateReservation):
					dup.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, ok.Load())
		assert.EqualValues(t, 7, dup.Load())
		assert.Equal(t, 1, f.occupancy(t, c.ID))
	})
}

func TestCancel_ConcurrentDoubleCancel(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 5)
		u, other := f.user(t), f.user(t)
		r, err := f.reservations.Reserve(ctx, u.ID, c.ID)
		require.NoError(t, err)
		_, err = f.reservations.Reserve(ctx, other.ID, c.ID)
		require.NoError(t, err)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = f.reservations.Cancel(ctx, r.ID, u.ID)
			}(i)
		}
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, service.ErrNotFound)
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, f.occupancy(t, c.ID), "the seat is released exactly once")
	})
}

func TestReserveAndCancel_Interleaved(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 3)

		var wg sync.WaitGroup
		for i := 0; i < 12; i++ {
			u := f.user(t)
			wg.Add(1)
			go func(userID string) {
				defer wg.Done()
				r, err := f.reservations.Reserve(ctx, userID, c.ID)
				if err != nil {
					return
				}
				_ = f.reservations.Cancel(ctx, r.ID, userID)
			}(u.ID)
		}
		wg.Wait()

		assert.Equal(t, 0, f.occupancy(t, c.ID))
	})
}

// =============================================================================
// READS
// =============================================================================

func TestListForUser(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		u := f.user(t)

		var ids []string
		for i := 0; i < 3; i++ {
			c := f.course(t, time.Duration(24+i)*time.Hour, 5)
			at := service.NewReservationService(f.store, clock.Fixed(now.Add(time.Duration(i)*time.Minute)), 0, zerolog.Nop())
			r, err := at.Reserve(ctx, u.ID, c.ID)
			require.NoError(t, err)
			ids = append(ids, r.ID)
		}

		list, err := f.reservations.ListForUser(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, ids[2], list[0].ID, "newest first")
		assert.Equal(t, ids[0], list[2].ID)
		require.NotNil(t, list[0].Course)

		again, err := f.reservations.ListForUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, list, again)

		empty, err := f.reservations.ListForUser(ctx, f.user(t).ID)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestGet_Visibility(t *testing.T) {
	forEachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.course(t, 24*time.Hour, 5)
		owner, stranger := f.user(t), f.user(t)
		admin := &model.User{ID: uuid.NewString(), Role: model.RoleAdmin}

		r, err := f.reservations.Reserve(ctx, owner.ID, c.ID)
		require.NoError(t, err)

		got, err := f.reservations.Get(ctx, r.ID, owner)
		require.NoError(t, err)
		assert.Equal(t, r.ID, got.ID)
		require.NotNil(t, got.User)
		assert.Equal(t, owner.Email, got.User.Email)

		_, err = f.reservations.Get(ctx, r.ID, admin)
		assert.NoError(t, err)

		_, err = f.reservations.Get(ctx, r.ID, stranger)
		assert.ErrorIs(t, err, service.ErrNotFound)

		_, err = f.reservations.Get(ctx, uuid.NewString(), owner)
		assert.ErrorIs(t, err, service.ErrNotFound)
	})
}

func ExampleCancellationWindowError() {
	err := &service.CancellationWindowError{HoursRemaining: 1.5, Window: 2}
	fmt.Println(errors.Is(err, service.ErrCancellationWindowClosed))
	// Output: true
}
