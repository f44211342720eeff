package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourse_Seats(t *testing.T) {
	c := &Course{Capacity: 3, Occupancy: 2}
	assert.Equal(t, 1, c.Remaining())
	assert.False(t, c.IsFull())

	c.Occupancy = 3
	assert.Equal(t, 0, c.Remaining())
	assert.True(t, c.IsFull())
}

func TestUser_PasswordHashNeverSerialized(t *testing.T) {
	u := User{ID: "u-1", Name: "Ada", Email: "ada@example.com", PasswordHash: "$2a$10$xyz", Role: RoleMember}

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "xyz")
	assert.NotContains(t, string(raw), "password")
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleMember.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("uye").Valid())
}

func TestCourse_Summary(t *testing.T) {
	at := time.Date(2026, time.May, 1, 7, 30, 0, 0, time.UTC)
	c := &Course{ID: "c-1", Title: "Yoga", Instructor: "Mira", StartsAt: at, Capacity: 10, Occupancy: 4}

	s := c.Summary()
	assert.Equal(t, &CourseSummary{ID: "c-1", Title: "Yoga", Instructor: "Mira", StartsAt: at, Capacity: 10, Occupancy: 4}, s)
}
