package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/fitreserve/internal/model"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresStore implements Store on top of a pgx connection pool.
// It uses pgx directly (no ORM).
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.db.Ping(ctx) }

func (s *PostgresStore) Close() { s.db.Close() }

const courseColumns = `id, title, instructor, starts_at, capacity, occupancy, created_at, updated_at`

func scanPgCourse(row pgx.Row) (*model.Course, error) {
	var c model.Course
	if err := row.Scan(&c.ID, &c.Title, &c.Instructor, &c.StartsAt, &c.Capacity, &c.Occupancy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.StartsAt = c.StartsAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isPgForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation
}

// ─── Courses ──────────────────────────────────────────────────────────────────

func (s *PostgresStore) CreateCourse(ctx context.Context, c *model.Course) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO courses (id, title, instructor, starts_at, capacity, occupancy, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Title, c.Instructor, c.StartsAt, c.Capacity, c.Occupancy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListCourses(ctx context.Context) ([]model.Course, error) {
	rows, err := s.db.Query(ctx,
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
		c, err := scanPgCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		courses = append(courses, *c)
	}
	return courses, rows.Err()
}

func (s *PostgresStore) GetCourse(ctx context.Context, id string) (*model.Course, error) {
	c, err := scanPgCourse(s.db.QueryRow(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) DeleteCourse(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Users ────────────────────────────────────────────────────────────────────

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, `SELECT id, name, email, password_hash, role, created_at FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) getUser(ctx context.Context, query, arg string) (*model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// ─── Reservations (read paths) ────────────────────────────────────────────────

func (s *PostgresStore) ListReservationsByUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.user_id, r.course_id, r.created_at,
		        c.id, c.title, c.instructor, c.starts_at, c.capacity, c.occupancy
		 FROM reservations r
		 JOIN courses c ON c.id = r.course_id
		 WHERE r.user_id = $1
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		var (
			r  model.Reservation
			cs model.CourseSummary
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.CourseID, &r.CreatedAt,
			&cs.ID, &cs.Title, &cs.Instructor, &cs.StartsAt, &cs.Capacity, &cs.Occupancy); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		cs.StartsAt = cs.StartsAt.UTC()
		r.Course = &cs
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var (
		r  model.Reservation
		cs model.CourseSummary
		us model.UserSummary
	)
	err := s.db.QueryRow(ctx,
		`SELECT r.id, r.user_id, r.course_id, r.created_at,
		        c.id, c.title, c.instructor, c.starts_at, c.capacity, c.occupancy,
		        u.id, u.name, u.email
		 FROM reservations r
		 JOIN courses c ON c.id = r.course_id
		 JOIN users u ON u.id = r.user_id
		 WHERE r.id = $1`,
		id,
	).Scan(&r.ID, &r.UserID, &r.CourseID, &r.CreatedAt,
		&cs.ID, &cs.Title, &cs.Instructor, &cs.StartsAt, &cs.Capacity, &cs.Occupancy,
		&us.ID, &us.Name, &us.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	cs.StartsAt = cs.StartsAt.UTC()
	r.Course = &cs
	r.User = &us
	return &r, nil
}

// ─── Unit of work ─────────────────────────────────────────────────────────────

// WithTx runs fn inside a database transaction.
//
// Concurrency comes from LockCourse: SELECT … FOR UPDATE takes a row-level
// exclusive lock on the course the moment it executes, and any other
// transaction issuing the same statement for that row blocks until this one
// commits or rolls back. Two admissions racing for the last seat therefore
// cannot both read the same occupancy.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockCourse(ctx context.Context, courseID string) (*model.Course, error) {
	c, err := scanPgCourse(t.tx.QueryRow(ctx,
		`SELECT `+courseColumns+`
		 FROM courses
		 WHERE id = $1
		 FOR UPDATE`,
		courseID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock course row: %w", err)
	}
	return c, nil
}

func (t *pgTx) HasReservation(ctx context.Context, userID, courseID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reservations WHERE user_id = $1 AND course_id = $2)`,
		userID, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (t *pgTx) GetOwnedReservation(ctx context.Context, reservationID, userID string) (*model.Reservation, error) {
	var (
		r  model.Reservation
		cs model.CourseSummary
	)
	err := t.tx.QueryRow(ctx,
		`SELECT r.id, r.user_id, r.course_id, r.created_at,
		        c.id, c.title, c.instructor, c.starts_at, c.capacity, c.occupancy
		 FROM reservations r
		 JOIN courses c ON c.id = r.course_id
		 WHERE r.id = $1 AND r.user_id = $2`,
		reservationID, userID,
	).Scan(&r.ID, &r.UserID, &r.CourseID, &r.CreatedAt,
		&cs.ID, &cs.Title, &cs.Instructor, &cs.StartsAt, &cs.Capacity, &cs.Occupancy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	cs.StartsAt = cs.StartsAt.UTC()
	r.Course = &cs
	return &r, nil
}

func (t *pgTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reservations (id, user_id, course_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		r.ID, r.UserID, r.CourseID, r.CreatedAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return ErrDuplicate
		}
		// user or course row is gone
		if isPgForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteReservation(ctx context.Context, reservationID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, reservationID)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) SetOccupancy(ctx context.Context, courseID string, occupancy int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE courses SET occupancy = $2, updated_at = NOW() WHERE id = $1`,
		courseID, occupancy,
	)
	if err != nil {
		return fmt.Errorf("update occupancy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) UpdateCourse(ctx context.Context, c *model.Course) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE courses
		 SET title = $2, instructor = $3, starts_at = $4, capacity = $5, updated_at = $6
		 WHERE id = $1`,
		c.ID, c.Title, c.Instructor, c.StartsAt, c.Capacity, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
