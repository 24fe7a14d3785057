package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used on the wire.
const DateLayout = "2006-01-02"

// User is a member of the directory. Exercises holds references to the
// user's exercise records in the order they were added.
type User struct {
	ID        string
	Username  string
	Exercises []string
	CreatedAt time.Time
}

// ExerciseRecord is a single logged exercise owned by a user.
type ExerciseRecord struct {
	ID          string
	UserID      string
	Description string
	Duration    float64
	Date        time.Time
	CreatedAt   time.Time
}

// PopulatedUser is a user whose exercise references have been resolved to
// full records.
type PopulatedUser struct {
	ID        string
	Username  string
	Exercises []ExerciseRecord
}

// LogFilter selects a user's exercise records. From and To are inclusive
// and independently optional. A zero Limit means no cap.
type LogFilter struct {
	UserID string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// Matches reports whether rec satisfies the filter predicate. Limit is not
// considered.
func (f LogFilter) Matches(rec ExerciseRecord) bool {
	if rec.UserID != f.UserID {
		return false
	}
	if f.From != nil && rec.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && rec.Date.After(*f.To) {
		return false
	}
	return true
}

// SortExercises orders records by date, then creation time, then ID.
func SortExercises(records []ExerciseRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Populate resolves the user's references against records, keeping
// reference order. References with no matching record are skipped.
func Populate(user User, records []ExerciseRecord) PopulatedUser {
	byID := make(map[string]ExerciseRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	out := PopulatedUser{
		ID:        user.ID,
		Username:  user.Username,
		Exercises: make([]ExerciseRecord, 0, len(user.Exercises)),
	}
	for _, id := range user.Exercises {
		if rec, ok := byID[id]; ok {
			out.Exercises = append(out.Exercises, rec)
		}
	}
	return out
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or RFC 3339 and returns the UTC calendar day.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return Day(t), nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
}
