package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
)

// sqliteTime is a fixed-width UTC layout; lexical order equals time order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTime) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store on a database/sql handle opened with
// database.OpenSQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore constructs a SQLiteStore.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() { _ = s.db.Close() }

func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isSQLiteForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCourse(row rowScanner) (*model.Course, error) {
	var c model.Course
	var startsAt, created, updated string
	if err := row.Scan(&c.ID, &c.Title, &c.Instructor, &startsAt, &c.Capacity, &c.Occupancy, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if c.StartsAt, err = parseTime(startsAt); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &c, nil
}

func selectCourse(ctx context.Context, q queryer, id string) (*model.Course, error) {
	c, err := scanSQLiteCourse(q.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

// ─── Courses ──────────────────────────────────────────────────────────────────

func (s *SQLiteStore) CreateCourse(ctx context.Context, c *model.Course) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO courses (id, title, instructor, starts_at, capacity, occupancy, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Instructor, formatTime(c.StartsAt), c.Capacity, c.Occupancy,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+courseColumns+`
		 FROM courses
		 ORDER BY starts_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	defer rows.Close()

	var courses []model.Course
	for rows.Next() {
		c, err := scanSQLiteCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

func (s *SQLiteStore) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	return selectCourse(ctx, s.db, id)
}

func (s *SQLiteStore) DeleteCourse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Users ────────────────────────────────────────────────────────────────────

func (s *SQLiteStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), formatTime(u.CreatedAt),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = ?`, id)
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) getUser(ctx context.Context, query, arg string) (*model.User, error) {
	var (
		u             model.User
		role, created string
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &u, nil
}

// ─── Reservations (read paths) ────────────────────────────────────────────────

func scanReservationWithCourse(row rowScanner, extra ...any) (*model.Reservation, error) {
	var (
		r                 model.Reservation
		cs                model.CourseSummary
		created, startsAt string
	)
	dest := append([]any{&r.ID, &r.UserID, &r.CourseID, &created,
		&cs.ID, &cs.Title, &cs.Instructor, &startsAt, &cs.Capacity, &cs.Occupancy}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	var err error
	if r.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if cs.StartsAt, err = parseTime(startsAt); err != nil {
		return nil, err
	}
	r.Course = &cs
	return &r, nil
}

func (s *SQLiteStore) ListReservationsByUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.user_id, r.course_id, r.created_at,
		        c.id, c.title, c.instructor, c.starts_at, c.capacity, c.occupancy
		 FROM reservations r
		 JOIN courses c ON c.id = r.course_id
		 WHERE r.user_id = ?
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservationWithCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var us model.UserSummary
	r, err := scanReservationWithCourse(s.db.QueryRowContext(ctx,
		`SELECT r.id, r.user_id, r.course_id, r.created_at,
		        c.id, c.title, c.instructor, c.starts_at, c.capacity, c.occupancy,
		        u.id, u.name, u.email
		 FROM reservations r
		 JOIN courses c ON c.id = r.course_id
		 JOIN users u ON u.id = r.user_id
		 WHERE r.id = ?`,
		id,
	), &us.ID, &us.Name, &us.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	r.User = &us
	return r, nil
}

// ─── Unit of work ─────────────────────────────────────────────────────────────

// WithTx runs fn inside a BEGIN IMMEDIATE transaction on the store's only
// connection, so units of work never interleave.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Safe to call after Commit.
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

// LockCourse reads the course inside the immediate transaction; the write
// lock taken at BEGIN already excludes every other writer.
func (t *sqliteTx) LockCourse(ctx context.Context, courseID string) (*model.Course, error) {
	return selectCourse(ctx, t.tx, courseID)
}

func (t *sqliteTx) HasReservation(ctx context.Context, userID, courseID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reservations WHERE user_id = ? AND course_id = ?)`,
		userID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (t *sqliteTx) GetOwnedReservation(ctx context.Context, reservationID, userID string) (*model.Reservation, error) {
	r, err := scanReservationWithCourse(t.tx.QueryRowContext(ctx,
		`SELECT r.id, r.user_id, r.course_id, r.created_at,
		        c.id, c.title, c.instructor, c.starts_at, c.capacity, c.occupancy
		 FROM reservations r
		 JOIN courses c ON c.id = r.course_id
		 WHERE r.id = ? AND r.user_id = ?`,
		reservationID, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (t *sqliteTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reservations (id, user_id, course_id, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.UserID, r.CourseID, formatTime(r.CreatedAt),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicate
		}
		// user or course row is gone
		if isSQLiteForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteReservation(ctx context.Context, reservationID string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, reservationID)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return requireAffected(res)
}

func (t *sqliteTx) SetOccupancy(ctx context.Context, courseID string, occupancy int) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE courses SET occupancy = ?, updated_at = ? WHERE id = ?`,
		occupancy, formatTime(time.Now()), courseID,
	)
	if err != nil {
		return fmt.Errorf("update occupancy: %w", err)
	}
	return requireAffected(res)
}

func (t *sqliteTx) UpdateCourse(ctx context.Context, c *model.Course) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE courses
		 SET title = ?, instructor = ?, starts_at = ?, capacity = ?, updated_at = ?
		 WHERE id = ?`,
		c.Title, c.Instructor, formatTime(c.StartsAt), c.Capacity, formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return requireAffected(res)
}
