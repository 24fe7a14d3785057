// Package mongo persists users and exercise records in MongoDB collections.
//
// The exercises collection is authoritative. The users.exercises array is a
// denormalised index rebuilt with $addToSet on every insert, so a record
// whose link write failed is picked up again by the owner's next insert.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"example.com/exercisetracker/internal/domain"
	"example.com/exercisetracker/internal/observability"
)

const (
	usersCollection     = "users"
	exercisesCollection = "exercises"
)

type userDocument struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Exercises []string  `bson:"exercises"`
	CreatedAt time.Time `bson:"created_at"`
}

type exerciseDocument struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	Description string    `bson:"description"`
	Duration    float64   `bson:"duration"`
	Date        time.Time `bson:"date"`
	CreatedAt   time.Time `bson:"created_at"`
}

// Repository is a MongoDB-backed domain.Repository.
type Repository struct {
	users     *mongo.Collection
	exercises *mongo.Collection
}

// NewRepository constructs a Repository over the given database.
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		users:     db.Collection(usersCollection),
		exercises: db.Collection(exercisesCollection),
	}
}

// Connect dials MongoDB and verifies the connection.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

// EnsureIndexes creates the indexes used by ListUsers and QueryExercises.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := r.exercises.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

// CreateUser implements domain.Repository.
func (r *Repository) CreateUser(ctx context.Context, user domain.User) error {
	doc := userDocument{
		ID:        user.ID,
		Username:  user.Username,
		Exercises: nonNil(user.Exercises),
		CreatedAt: user.CreatedAt,
	}
	_, err := r.users.InsertOne(ctx, doc)
	return err
}

// ListUsers returns users in creation order without their references.
func (r *Repository) ListUsers(ctx context.Context) ([]domain.User, error) {
	opts := options.Find().
		SetProjection(bson.M{"exercises": 0}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, domain.User{ID: doc.ID, Username: doc.Username, CreatedAt: doc.CreatedAt})
	}
	return users, nil
}

// GetUser returns nil, nil when no user has the given ID.
func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var doc userDocument
	if err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	user := toUser(doc)
	return &user, nil
}

// AddExercise inserts the record and then relinks every record owned by
// the user into the reference array.
func (r *Repository) AddExercise(ctx context.Context, record domain.ExerciseRecord) (*domain.PopulatedUser, error) {
	owner, err := r.GetUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, domain.UserNotFound()
	}

	if _, err := r.exercises.InsertOne(ctx, toExerciseDocument(record)); err != nil {
		return nil, err
	}
	observability.RecordExercisePersisted(record.CreatedAt)

	owned, err := r.ownedExerciseIDs(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	var doc userDocument
	err = r.users.FindOneAndUpdate(ctx,
		bson.M{"_id": record.UserID},
		bson.M{"$addToSet": bson.M{"exercises": bson.M{"$each": owned}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.UserNotFound()
		}
		return nil, err
	}

	linked, err := r.findExercises(ctx, bson.M{"_id": bson.M{"$in": doc.Exercises}}, options.Find())
	if err != nil {
		return nil, err
	}
	populated := domain.Populate(toUser(doc), linked)
	return &populated, nil
}

// QueryExercises filters the exercises collection by owner and date range.
func (r *Repository) QueryExercises(ctx context.Context, filter domain.LogFilter) ([]domain.ExerciseRecord, error) {
	query, opts := buildLogQuery(filter)
	return r.findExercises(ctx, query, opts)
}

// buildLogQuery turns the filter into a find document. Each bound becomes
// an inclusive comparison only when set.
func buildLogQuery(filter domain.LogFilter) (bson.M, *options.FindOptions) {
	query := bson.M{"user_id": filter.UserID}

	dateRange := bson.M{}
	if filter.From != nil {
		dateRange["$gte"] = *filter.From
	}
	if filter.To != nil {
		dateRange["$lte"] = *filter.To
	}
	if len(dateRange) > 0 {
		query["date"] = dateRange
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: 1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return query, opts
}

func (r *Repository) ownedExerciseIDs(ctx context.Context, userID string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := r.exercises.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *Repository) findExercises(ctx context.Context, query bson.M, opts *options.FindOptions) ([]domain.ExerciseRecord, error) {
	cursor, err := r.exercises.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	var docs []exerciseDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]domain.ExerciseRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, domain.ExerciseRecord{
			ID:          doc.ID,
			UserID:      doc.UserID,
			Description: doc.Description,
			Duration:    doc.Duration,
			Date:        domain.Day(doc.Date),
			CreatedAt:   doc.CreatedAt.UTC(),
		})
	}
	return records, nil
}

func toUser(doc userDocument) domain.User {
	return domain.User{
		ID:        doc.ID,
		Username:  doc.Username,
		Exercises: doc.Exercises,
		CreatedAt: doc.CreatedAt.UTC(),
	}
}

func toExerciseDocument(record domain.ExerciseRecord) exerciseDocument {
	return exerciseDocument{
		ID:          record.ID,
		UserID:      record.UserID,
		Description: record.Description,
		Duration:    record.Duration,
		Date:        record.Date,
		CreatedAt:   record.CreatedAt,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
