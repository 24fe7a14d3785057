package api

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/exercisetracker/internal/domain"
)

const maxBodyBytes = 1 << 20

// NewUserRequest is the payload for POST /api/exercise/new-user.
type NewUserRequest struct {
	Username string
}

// AddExerciseRequest is the payload for POST /api/exercise/add.
type AddExerciseRequest struct {
	UserID      string
	Description string
	Duration    float64
	Date        *time.Time
}

// LogRequest carries the query parameters of GET /api/exercise/log.
type LogRequest struct {
	UserID string
	From   *time.Time
	To     *time.Time
	Limit  int
}

func parseNewUser(w http.ResponseWriter, r *http.Request) (NewUserRequest, error) {
	fields, err := readFields(w, r)
	if err != nil {
		return NewUserRequest{}, err
	}
	return NewUserRequest{Username: fields.get("username")}, nil
}

func parseAddExercise(w http.ResponseWriter, r *http.Request) (AddExerciseRequest, error) {
	fields, err := readFields(w, r)
	if err != nil {
		return AddExerciseRequest{}, err
	}

	req := AddExerciseRequest{
		UserID:      fields.get("userId", "userid", "_id"),
		Description: fields.get("description"),
	}

	rawDuration := fields.get("duration")
	if rawDuration == "" {
		return AddExerciseRequest{}, domain.Invalid("duration", "duration is required")
	}
	duration, err := strconv.ParseFloat(rawDuration, 64)
	if err != nil {
		return AddExerciseRequest{}, domain.Invalid("duration", "duration must be a number")
	}
	req.Duration = duration

	if req.Date, err = optionalDate("date", fields.get("date")); err != nil {
		return AddExerciseRequest{}, err
	}
	return req, nil
}

func parseLog(r *http.Request) (LogRequest, error) {
	query := r.URL.Query()
	req := LogRequest{UserID: strings.TrimSpace(query.Get("userid"))}
	if req.UserID == "" {
		req.UserID = strings.TrimSpace(query.Get("userId"))
	}

	var err error
	if req.From, err = optionalDate("from", query.Get("from")); err != nil {
		return LogRequest{}, err
	}
	if req.To, err = optionalDate("to", query.Get("to")); err != nil {
		return LogRequest{}, err
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, convErr := strconv.Atoi(raw)
		if convErr != nil || limit <= 0 {
			return LogRequest{}, domain.Invalid("limit", "limit must be a positive integer")
		}
		req.Limit = limit
	}
	return req, nil
}

func optionalDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		return nil, domain.Invalid(field, "%s must be a date in YYYY-MM-DD format", field)
	}
	return &date, nil
}

// formFields is a flattened view over form or JSON bodies.
type formFields map[string]string

// get returns the first non-empty value among keys.
func (f formFields) get(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(f[key]); value != "" {
			return value
		}
	}
	return ""
}

func readFields(w http.ResponseWriter, r *http.Request) (formFields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if mediaType == "application/json" {
		return readJSONFields(r)
	}

	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(maxBodyBytes)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return nil, domain.Invalid("body", "unable to parse body")
	}

	out := make(formFields, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out, nil
}

func readJSONFields(r *http.Request) (formFields, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, domain.Invalid("body", "unable to parse body")
	}

	out := make(formFields, len(raw))
	for key, value := range raw {
		text, err := scalarText(value)
		if err != nil {
			return nil, domain.Invalid(key, "%s must be a string or number", key)
		}
		out[key] = text
	}
	return out, nil
}

// scalarText renders a JSON string, number or null as plain text.
func scalarText(value json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(value, &n); err == nil {
		return n.String(), nil
	}
	if strings.TrimSpace(string(value)) == "null" {
		return "", nil
	}
	return "", fmt.Errorf("unsupported value %s", value)
}
