package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/events"
	"example.com/exercisetracker/internal/observability"
)

const exerciseColumns = `exercise_id, user_id, description, duration, exercise_date, created_at`

// Repository provides Postgres-backed persistence for users, exercises and
// outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateUser persists the user and its user.created outbox event in one
// transaction.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO users (user_id, username, exercise_ids, created_at) VALUES ($1,$2,$3,$4)`,
		user.ID, user.Username, nonNil(user.Exercises), user.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = insertOutbox(ctx, tx, "user", user.ID, user.ID, events.TypeUserCreated, events.UserCreated{
		UserID:    user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ListUsers returns users in creation order.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, username, created_at FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT user_id, username, exercise_ids, created_at FROM users WHERE user_id=$1`, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Username, &u.Exercises, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// AddExercise inserts the record, appends it to the owner's reference list
// and records the outbox event inside a single transaction.
func (r *Repository) AddExercise(ctx context.Context, record domain.ExerciseRecord) (_ *domain.PopulatedUser, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	var user domain.User
	err = tx.QueryRow(ctx,
		`SELECT user_id, username, created_at FROM users WHERE user_id=$1 FOR UPDATE`, record.UserID,
	).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = domain.UserNotFound()
		}
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO exercises (`+exerciseColumns+`) VALUES ($1,$2,$3,$4,$5,$6)`,
		record.ID, record.UserID, record.Description, record.Duration, record.Date, record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx,
		`UPDATE users SET exercise_ids = array_append(exercise_ids, $2) WHERE user_id=$1 RETURNING exercise_ids`,
		record.UserID, record.ID,
	).Scan(&user.Exercises)
	if err != nil {
		return nil, err
	}

	if err = insertOutbox(ctx, tx, "exercise", record.ID, record.UserID, events.TypeExerciseRecorded, events.ExerciseRecorded{
		ExerciseID:  record.ID,
		UserID:      record.UserID,
		Description: record.Description,
		Duration:    record.Duration,
		Date:        record.Date.Format(domain.DateLayout),
		CreatedAt:   record.CreatedAt,
	}); err != nil {
		return nil, err
	}

	linked, err := queryRecords(ctx, tx,
		`SELECT `+exerciseColumns+` FROM exercises WHERE exercise_id = ANY($1)`, user.Exercises)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	observability.RecordExercisePersisted(record.CreatedAt)

	populated := domain.Populate(user, linked)
	return &populated, nil
}

// QueryExercises reads the canonical exercises table; the users reference
// list is not consulted.
func (r *Repository) QueryExercises(ctx context.Context, filter domain.LogFilter) ([]domain.ExerciseRecord, error) {
	query, args := buildLogQuery(filter)
	return queryRecords(ctx, r.pool, query, args...)
}

// buildLogQuery renders the filter as SQL. Each date bound is appended only
// when present.
func buildLogQuery(filter domain.LogFilter) (string, []any) {
	args := []any{filter.UserID}
	query := `SELECT ` + exerciseColumns + ` FROM exercises WHERE user_id=$1`

	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND exercise_date >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND exercise_date <= $%d`, len(args))
	}

	query += ` ORDER BY exercise_date, created_at, exercise_id`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return query, args
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryRecords(ctx context.Context, q querier, query string, args ...any) ([]domain.ExerciseRecord, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ExerciseRecord, 0)
	for rows.Next() {
		var rec domain.ExerciseRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Description, &rec.Duration, &rec.Date, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Date = domain.Day(rec.Date)
		results = append(results, rec)
	}
	return results, rows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, partitionKey, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		fmt.Sprintf("%s:%s", aggregateID, eventType),
	)
	return err
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeUserCreated: {
		Topic:         "exercise_users",
		SchemaSubject: "exercise_users-value",
	},
	events.TypeExerciseRecorded: {
		Topic:         "exercise_records",
		SchemaSubject: "exercise_records-value",
	},
}
