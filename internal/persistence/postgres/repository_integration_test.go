//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/testsupport"
)

func day(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func newRecord(userID, description, date string, created time.Time, t *testing.T) domain.ExerciseRecord {
	return domain.ExerciseRecord{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: description,
		Duration:    30,
		Date:        day(t, date),
		CreatedAt:   created,
	}
}

func TestRepositoryAddExerciseLinksRecordAndWritesOutbox(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testsupport.StartPostgres(ctx, t))

	now := time.Now().UTC().Truncate(time.Microsecond)
	user := domain.User{ID: uuid.NewString(), Username: "alice", CreatedAt: now}
	require.NoError(t, repo.CreateUser(ctx, user))

	first := newRecord(user.ID, "run", "2024-01-05", now, t)
	second := newRecord(user.ID, "swim", "2024-01-02", now.Add(time.Second), t)

	_, err := repo.AddExercise(ctx, first)
	require.NoError(t, err)
	populated, err := repo.AddExercise(ctx, second)
	require.NoError(t, err)

	require.Equal(t, user.ID, populated.ID)
	require.Len(t, populated.Exercises, 2)
	require.Equal(t, first.ID, populated.Exercises[0].ID)
	require.Equal(t, second.ID, populated.Exercises[1].ID)
	require.Equal(t, first.Date, populated.Exercises[0].Date)

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{first.ID, second.ID}, stored.Exercises)

	var events int
	require.NoError(t, repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE partition_key = $1`, user.ID).Scan(&events))
	require.Equal(t, 3, events, "one user.created and two exercise.recorded events")
}

func TestRepositoryAddExerciseUnknownUserWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testsupport.StartPostgres(ctx, t))

	_, err := repo.AddExercise(ctx, newRecord("missing", "run", "2024-01-05", time.Now().UTC(), t))
	require.True(t, domain.IsNotFound(err))

	var count int
	require.NoError(t, repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exercises`).Scan(&count))
	require.Zero(t, count)
	require.NoError(t, repo.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&count))
	require.Zero(t, count)
}

func TestRepositoryQueryExercisesFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testsupport.StartPostgres(ctx, t))

	now := time.Now().UTC().Truncate(time.Microsecond)
	alice := domain.User{ID: uuid.NewString(), Username: "alice", CreatedAt: now}
	bob := domain.User{ID: uuid.NewString(), Username: "bob", CreatedAt: now.Add(time.Millisecond)}
	require.NoError(t, repo.CreateUser(ctx, alice))
	require.NoError(t, repo.CreateUser(ctx, bob))

	for i, date := range []string{"2024-01-03", "2024-01-01", "2024-01-05", "2024-01-04"} {
		_, err := repo.AddExercise(ctx, newRecord(alice.ID, date, date, now.Add(time.Duration(i)*time.Second), t))
		require.NoError(t, err)
	}
	_, err := repo.AddExercise(ctx, newRecord(bob.ID, "other", "2024-01-03", now, t))
	require.NoError(t, err)

	from, to := day(t, "2024-01-02"), day(t, "2024-01-04")
	records, err := repo.QueryExercises(ctx, domain.LogFilter{UserID: alice.ID, From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2024-01-03", records[0].Description)
	require.Equal(t, "2024-01-04", records[1].Description)

	records, err = repo.QueryExercises(ctx, domain.LogFilter{UserID: alice.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2024-01-01", records[0].Description)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, "alice", users[0].Username)
	require.Empty(t, users[0].Exercises)
}

func TestRepositoryConcurrentAddsKeepEveryReference(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testsupport.StartPostgres(ctx, t))

	user := domain.User{ID: uuid.NewString(), Username: "alice", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateUser(ctx, user))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AddExercise(ctx, newRecord(user.ID, "lap", "2024-01-05", time.Now().UTC(), t))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, stored.Exercises, writers)
}
