package database

// PostgresSchema creates the tables if they do not exist yet.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	instructor TEXT NOT NULL,
	starts_at  TIMESTAMPTZ NOT NULL,
	capacity   INTEGER NOT NULL CHECK (capacity > 0),
	occupancy  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT courses_occupancy_bounds CHECK (occupancy >= 0 AND occupancy <= capacity)
);

CREATE INDEX IF NOT EXISTS idx_courses_starts_at ON courses (starts_at);

CREATE TABLE IF NOT EXISTS reservations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	course_id  TEXT NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
	created_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT reservations_user_course_key UNIQUE (user_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_reservations_course ON reservations (course_id);
`

// SQLiteSchema mirrors PostgresSchema. Timestamps are stored as fixed-width
// UTC text so that lexical order matches chronological order.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('member', 'admin')),
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	instructor TEXT NOT NULL,
	starts_at  TEXT NOT NULL,
	capacity   INTEGER NOT NULL CHECK (capacity > 0),
	occupancy  INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	CHECK (occupancy >= 0 AND occupancy <= capacity)
);

CREATE INDEX IF NOT EXISTS idx_courses_starts_at ON courses (starts_at);

CREATE TABLE IF NOT EXISTS reservations (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	course_id  TEXT NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	UNIQUE (user_id, course_id)
);

CREATE INDEX IF NOT EXISTS idx_reservations_course ON reservations (course_id);
`
