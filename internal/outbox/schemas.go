package outbox

import "example.com/exercisetracker/internal/events"

const userCreatedSchema = `{
  "type": "object",
  "title": "UserCreated",
  "properties": {
    "user_id": {"type": "string"},
    "username": {"type": "string", "minLength": 1},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "username", "created_at"],
  "additionalProperties": false
}`

const exerciseRecordedSchema = `{
  "type": "object",
  "title": "ExerciseRecorded",
  "properties": {
    "exercise_id": {"type": "string"},
    "user_id": {"type": "string"},
    "description": {"type": "string", "minLength": 1},
    "duration": {"type": "number", "exclusiveMinimum": 0},
    "date": {"type": "string", "format": "date"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["exercise_id", "user_id", "description", "duration", "date", "created_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeUserCreated: {
		Schema: userCreatedSchema,
	},
	events.TypeExerciseRecorded: {
		Schema: exerciseRecordedSchema,
	},
}
