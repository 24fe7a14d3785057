// Package domain defines the business logic for the exercise tracker.
package domain

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"example.com/exercisetracker/internal/observability"
)

// Repository captures persistence operations.
//
// GetUser returns nil, nil when the user does not exist. AddExercise must
// persist the record and append its ID to the owner's reference list,
// returning a NotFoundError if the owner is gone.
type Repository interface {
	CreateUser(ctx context.Context, user User) error
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	AddExercise(ctx context.Context, record ExerciseRecord) (*PopulatedUser, error)
	QueryExercises(ctx context.Context, filter LogFilter) ([]ExerciseRecord, error)
}

// Service orchestrates user and exercise workflows.
type Service struct {
	repo  Repository
	clock clockwork.Clock
}

// Option configures optional Service behaviour.
type Option func(*Service)

// WithClock overrides the clock used for default dates and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddExerciseInput captures the payload from the API layer. A nil Date
// means "today".
type AddExerciseInput struct {
	UserID      string
	Description string
	Duration    float64
	Date        *time.Time
}

// LogQuery captures a request for a user's exercise log.
type LogQuery struct {
	UserID string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// CreateUser validates and stores a new user.
func (s *Service) CreateUser(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, Invalid("username", "username is required")
	}

	user := User{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, wrapStore("create user", err)
	}
	observability.RecordUserCreated()
	return &user, nil
}

// ListUsers returns every user without exercise references.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, wrapStore("list users", err)
	}
	for i := range users {
		users[i].Exercises = nil
	}
	return users, nil
}

// AddExercise records an exercise for an existing user and returns the
// user with its exercise list resolved.
func (s *Service) AddExercise(ctx context.Context, input AddExerciseInput) (*PopulatedUser, error) {
	userID := strings.TrimSpace(input.UserID)
	description := strings.TrimSpace(input.Description)
	switch {
	case userID == "":
		return nil, Invalid("userId", "userId is required")
	case description == "":
		return nil, Invalid("description", "description is required")
	case math.IsNaN(input.Duration) || math.IsInf(input.Duration, 0) || input.Duration <= 0:
		return nil, Invalid("duration", "duration must be a positive number of minutes")
	}

	owner, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, wrapStore("get user", err)
	}
	if owner == nil {
		return nil, UserNotFound()
	}

	now := s.clock.Now().UTC()
	date := Day(now)
	if input.Date != nil {
		date = Day(*input.Date)
	}

	record := ExerciseRecord{
		ID:          uuid.NewString(),
		UserID:      owner.ID,
		Description: description,
		Duration:    input.Duration,
		Date:        date,
		CreatedAt:   now,
	}

	populated, err := s.repo.AddExercise(ctx, record)
	if err != nil {
		return nil, wrapStore("add exercise", err)
	}
	observability.RecordExerciseRecorded(record.Duration)
	return populated, nil
}

// QueryLog returns the user's exercise records within the optional date
// bounds, ordered by date. ErrNoData is returned when nothing matches.
func (s *Service) QueryLog(ctx context.Context, query LogQuery) ([]ExerciseRecord, error) {
	filter, err := query.Filter()
	if err != nil {
		return nil, err
	}

	records, err := s.repo.QueryExercises(ctx, filter)
	if err != nil {
		return nil, wrapStore("query exercises", err)
	}
	SortExercises(records)
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}

	observability.RecordLogQuery(len(records))
	if len(records) == 0 {
		return nil, ErrNoData
	}
	return records, nil
}

// Filter validates the query and builds the store predicate.
func (q LogQuery) Filter() (LogFilter, error) {
	userID := strings.TrimSpace(q.UserID)
	if userID == "" {
		return LogFilter{}, Invalid("userid", "no userid")
	}
	if q.Limit < 0 {
		return LogFilter{}, Invalid("limit", "limit must be a positive integer")
	}

	filter := LogFilter{UserID: userID, Limit: q.Limit}
	if q.From != nil {
		from := Day(*q.From)
		filter.From = &from
	}
	if q.To != nil {
		to := Day(*q.To)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return LogFilter{}, Invalid("from", "from must not be after to")
	}
	return filter, nil
}
