package api

import "example.com/exercisetracker/internal/domain"

// UserView is the public shape of a user.
type UserView struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
}

// ExerciseView is the public shape of an exercise record.
type ExerciseView struct {
	ID          string  `json:"_id"`
	UserID      string  `json:"userId"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Date        string  `json:"date"`
}

// PopulatedUserView is a user with its exercise list resolved.
type PopulatedUserView struct {
	ID        string         `json:"_id"`
	Username  string         `json:"username"`
	Exercises []ExerciseView `json:"exercises"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toUserView(user domain.User) UserView {
	return UserView{ID: user.ID, Username: user.Username}
}

func toExerciseView(rec domain.ExerciseRecord) ExerciseView {
	return ExerciseView{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Description: rec.Description,
		Duration:    rec.Duration,
		Date:        rec.Date.Format(domain.DateLayout),
	}
}

func toExerciseViews(records []domain.ExerciseRecord) []ExerciseView {
	out := make([]ExerciseView, 0, len(records))
	for _, rec := range records {
		out = append(out, toExerciseView(rec))
	}
	return out
}

func toPopulatedUserView(user domain.PopulatedUser) PopulatedUserView {
	return PopulatedUserView{
		ID:        user.ID,
		Username:  user.Username,
		Exercises: toExerciseViews(user.Exercises),
	}
}
