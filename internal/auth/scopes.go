package auth

import "net/http"

// Scopes granted to exercise tracker clients.
const (
	ScopeExercisesWrite = "exercises:write"
	ScopeExercisesRead  = "exercises:read"
)

// requiredScopes lists the scopes of which a caller needs at least one.
// Writers may also read.
func requiredScopes(r *http.Request) []string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return []string{ScopeExercisesRead, ScopeExercisesWrite}
	default:
		return []string{ScopeExercisesWrite}
	}
}
