// Package events defines the payloads published for exercise tracker changes.
package events

import "time"

// Event types carried in the outbox and the Kafka event_type header.
const (
	TypeUserCreated      = "user.created"
	TypeExerciseRecorded = "exercise.recorded"
)

// UserCreated is emitted when a user joins the directory.
type UserCreated struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// ExerciseRecorded is emitted when an exercise record is linked to its owner.
type ExerciseRecorded struct {
	ExerciseID  string    `json:"exercise_id"`
	UserID      string    `json:"user_id"`
	Description string    `json:"description"`
	Duration    float64   `json:"duration"`
	Date        string    `json:"date"`
	CreatedAt   time.Time `json:"created_at"`
}
