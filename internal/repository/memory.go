package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
)

// MemoryStore is an in-process Store for tests and single-node demos.
//
// Row locks are modelled with one single-slot channel per course id, so a
// waiter gives up when its context ends. A unit of work stages
// its writes and applies them under the store mutex on commit, so readers
// never observe a reservation without its occupancy change or the reverse.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]model.User
	emails       map[string]string // email -> user id
	courses      map[string]model.Course
	reservations map[string]model.Reservation

	locksMu     sync.Mutex
	courseLocks map[string]rowLock
}

// rowLock is a mutex that can be abandoned while waiting.
type rowLock chan struct{}

func (l rowLock) lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l rowLock) unlock() { <-l }

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]model.User),
		emails:       make(map[string]string),
		courses:      make(map[string]model.Course),
		reservations: make(map[string]model.Reservation),
		courseLocks:  make(map[string]rowLock),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() {}

// courseLock returns the lock guarding courseID, creating it on first use.
// Entries are never removed; a lock for a deleted course is simply idle.
func (m *MemoryStore) courseLock(courseID string) rowLock {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.courseLocks[courseID]
	if !ok {
		l = make(rowLock, 1)
		m.courseLocks[courseID] = l
	}
	return l
}

// ─── Courses ──────────────────────────────────────────────────────────────────

func (m *MemoryStore) CreateCourse(_ context.Context, c *model.Course) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[c.ID]; ok {
		return ErrDuplicate
	}
	m.courses[c.ID] = *c
	return nil
}

func (m *MemoryStore) ListCourses(_ context.Context) ([]model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetCourse(_ context.Context, id string) (*model.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// DeleteCourse takes the course lock first, like any unit of work touching
// the course, then removes it together with its reservations.
func (m *MemoryStore) DeleteCourse(ctx context.Context, id string) error {
	l := m.courseLock(id)
	if err := l.lock(ctx); err != nil {
		return err
	}
	defer l.unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return ErrNotFound
	}
	delete(m.courses, id)
	for rid, r := range m.reservations {
		if r.CourseID == id {
			delete(m.reservations, rid)
		}
	}
	return nil
}

// ─── Users ────────────────────────────────────────────────────────────────────

func (m *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[u.Email]; ok {
		return ErrDuplicate
	}
	if _, ok := m.users[u.ID]; ok {
		return ErrDuplicate
	}
	m.users[u.ID] = *u
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	u := m.users[id]
	return &u, nil
}

// ─── Reservations (read paths) ────────────────────────────────────────────────

// withCourseLocked attaches the course summary. Caller holds m.mu.
func (m *MemoryStore) withCourseLocked(r model.Reservation) (model.Reservation, bool) {
	c, ok := m.courses[r.CourseID]
	if !ok {
		return r, false
	}
	r.Course = c.Summary()
	return r, true
}

func (m *MemoryStore) ListReservationsByUser(_ context.Context, userID string) ([]model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Reservation
	for _, r := range m.reservations {
		if r.UserID != userID {
			continue
		}
		if r, ok := m.withCourseLocked(r); ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	u, ok := m.users[r.UserID]
	if !ok {
		return nil, ErrNotFound
	}
	r, ok = m.withCourseLocked(r)
	if !ok {
		return nil, ErrNotFound
	}
	r.User = u.Summary()
	return &r, nil
}

// ─── Unit of work ─────────────────────────────────────────────────────────────

// WithTx runs fn with a staged unit of work. Course locks taken by fn are
// held until the staged writes are applied or discarded.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		m:         m,
		held:      make(map[string]rowLock),
		deleted:   make(map[string]bool),
		occupancy: make(map[string]int),
		updates:   make(map[string]model.Course),
	}
	defer tx.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	m    *MemoryStore
	held map[string]rowLock
	// order in which locks were taken, released in reverse
	order []string

	inserts   []model.Reservation
	deleted   map[string]bool
	occupancy map[string]int
	updates   map[string]model.Course
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.held[t.order[i]].unlock()
	}
	t.order = nil
	t.held = nil
}

func (t *memTx) LockCourse(ctx context.Context, courseID string) (*model.Course, error) {
	if _, ok := t.held[courseID]; !ok {
		if _, err := t.m.GetCourse(ctx, courseID); err != nil {
			return nil, err
		}
		l := t.m.courseLock(courseID)
		if err := l.lock(ctx); err != nil {
			return nil, err
		}
		t.held[courseID] = l
		t.order = append(t.order, courseID)
	}

	// Re-read under the lock: the course may have been deleted or changed
	// while we were waiting.
	c, err := t.m.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if u, ok := t.updates[courseID]; ok {
		*c = u
	}
	if n, ok := t.occupancy[courseID]; ok {
		c.Occupancy = n
	}
	return c, nil
}

func (t *memTx) HasReservation(_ context.Context, userID, courseID string) (bool, error) {
	for _, r := range t.inserts {
		if r.UserID == userID && r.CourseID == courseID {
			return true, nil
		}
	}

	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	for id, r := range t.m.reservations {
		if r.UserID == userID && r.CourseID == courseID && !t.deleted[id] {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) GetOwnedReservation(_ context.Context, reservationID, userID string) (*model.Reservation, error) {
	if t.deleted[reservationID] {
		return nil, ErrNotFound
	}

	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	r, ok := t.m.reservations[reservationID]
	if !ok || r.UserID != userID {
		return nil, ErrNotFound
	}
	r, ok = t.m.withCourseLocked(r)
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (t *memTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	dup, err := t.HasReservation(ctx, r.UserID, r.CourseID)
	if err != nil {
		return err
	}
	if dup {
		return ErrDuplicate
	}
	rc := *r
	rc.Course, rc.User = nil, nil
	t.inserts = append(t.inserts, rc)
	return nil
}

func (t *memTx) DeleteReservation(_ context.Context, reservationID string) error {
	if t.deleted[reservationID] {
		return ErrNotFound
	}
	t.m.mu.RLock()
	_, ok := t.m.reservations[reservationID]
	t.m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	t.deleted[reservationID] = true
	return nil
}

func (t *memTx) SetOccupancy(ctx context.Context, courseID string, occupancy int) error {
	if _, err := t.m.GetCourse(ctx, courseID); err != nil {
		return err
	}
	t.occupancy[courseID] = occupancy
	return nil
}

func (t *memTx) UpdateCourse(ctx context.Context, c *model.Course) error {
	if _, err := t.m.GetCourse(ctx, c.ID); err != nil {
		return err
	}
	t.updates[c.ID] = *c
	return nil
}

// commit validates the staged writes against the current state and applies
// them in one critical section. A failed validation applies nothing.
func (t *memTx) commit() error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range t.deleted {
		if _, ok := m.reservations[id]; !ok {
			return ErrNotFound
		}
	}
	for _, r := range t.inserts {
		if _, ok := m.courses[r.CourseID]; !ok {
			return ErrNotFound
		}
		if _, ok := m.users[r.UserID]; !ok {
			return ErrNotFound
		}
		if _, ok := m.reservations[r.ID]; ok {
			return ErrDuplicate
		}
	}
	for id := range t.occupancy {
		if _, ok := m.courses[id]; !ok {
			return ErrNotFound
		}
	}
	for id := range t.updates {
		if _, ok := m.courses[id]; !ok {
			return ErrNotFound
		}
	}

	for id := range t.deleted {
		delete(m.reservations, id)
	}
	for _, r := range t.inserts {
		m.reservations[r.ID] = r
	}
	for id, u := range t.updates {
		c := m.courses[id]
		c.Title, c.Instructor, c.StartsAt, c.Capacity, c.UpdatedAt = u.Title, u.Instructor, u.StartsAt, u.Capacity, u.UpdatedAt
		m.courses[id] = c
	}
	for id, n := range t.occupancy {
		c := m.courses[id]
		c.Occupancy = n
		m.courses[id] = c
	}
	return nil
}
