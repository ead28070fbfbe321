package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderIsDueOn(t *testing.T) {
	wednesday := time.Date(2024, 5, 15, 8, 0, 0, 0, time.UTC)
	other := time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		r    Reminder
		want bool
	}{
		{"one-off today", Reminder{IsActive: true, ScheduledDate: &wednesday}, true},
		{"one-off other day", Reminder{IsActive: true, ScheduledDate: &other}, false},
		{"one-off without date", Reminder{IsActive: true}, false},
		{"daily", Reminder{IsActive: true, IsRecurring: true, RecurrencePattern: "daily"}, true},
		{"weekly match", Reminder{IsActive: true, IsRecurring: true, RecurrencePattern: "weekly", DaysOfWeek: "Mon, wed"}, true},
		{"weekly miss", Reminder{IsActive: true, IsRecurring: true, RecurrencePattern: "weekly", DaysOfWeek: "Mon,Fri"}, false},
		{"inactive", Reminder{IsActive: false, IsRecurring: true, RecurrencePattern: "daily"}, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.r.IsDueOn(wednesday), tc.name)
	}
}

func TestJSONMapRoundTrip(t *testing.T) {
	v, err := JSONMap{"symptoms": "cough"}.Value()
	require.NoError(t, err)

	var m JSONMap
	require.NoError(t, m.Scan([]byte(v.(string))))
	assert.Equal(t, "cough", m["symptoms"])

	require.NoError(t, m.Scan(nil))
	assert.Empty(t, m)
	assert.Error(t, m.Scan(42))
}

func TestMonthStart(t *testing.T) {
	got := MonthStart(time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestUserPassword(t *testing.T) {
	u := User{Username: "ana"}
	require.NoError(t, u.SetPassword("s3cret-pass"))
	assert.NotEqual(t, "s3cret-pass", u.Password)
	assert.True(t, u.CheckPassword("s3cret-pass"))
	assert.False(t, u.CheckPassword("wrong"))
}
