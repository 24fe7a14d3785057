// Package memory provides an in-process store for local development and tests.
package memory

import (
	"context"
	"sync"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/observability"
)

// Repository keeps users and exercise records in memory. A single lock
// covers the record insert and the reference append.
type Repository struct {
	mu        sync.RWMutex
	order     []string
	users     map[string]domain.User
	exercises map[string]domain.ExerciseRecord
}

// NewRepository constructs an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		users:     make(map[string]domain.User),
		exercises: make(map[string]domain.ExerciseRecord),
	}
}

// CreateUser implements domain.Repository.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; !exists {
		r.order = append(r.order, user.ID)
	}
	user.Exercises = append([]string(nil), user.Exercises...)
	r.users[user.ID] = user
	return nil
}

// ListUsers returns users in insertion order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.copyUser(r.users[id]))
	}
	return out, nil
}

// GetUser returns the user or nil when absent.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := r.copyUser(user)
	return &cp, nil
}

// AddExercise stores the record and links it to its owner.
func (r *Repository) AddExercise(ctx context.Context, record domain.ExerciseRecord) (*domain.PopulatedUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[record.UserID]
	if !ok {
		return nil, domain.UserNotFound()
	}

	r.exercises[record.ID] = record
	user.Exercises = append(user.Exercises, record.ID)
	r.users[user.ID] = user
	observability.RecordExercisePersisted(record.CreatedAt)

	linked := make([]domain.ExerciseRecord, 0, len(user.Exercises))
	for _, id := range user.Exercises {
		if rec, ok := r.exercises[id]; ok {
			linked = append(linked, rec)
		}
	}
	populated := domain.Populate(user, linked)
	return &populated, nil
}

// QueryExercises scans the record set with the filter predicate.
func (r *Repository) QueryExercises(ctx context.Context, filter domain.LogFilter) ([]domain.ExerciseRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]domain.ExerciseRecord, 0)
	for _, rec := range r.exercises {
		if filter.Matches(rec) {
			results = append(results, rec)
		}
	}
	domain.SortExercises(results)
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (r *Repository) copyUser(user domain.User) domain.User {
	user.Exercises = append([]string(nil), user.Exercises...)
	return user
}
