package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "exercise-tracker"}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return token
}

func validClaims(scopes any) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "client-1",
		"iss":    testConfig.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": scopes,
	}
}

func serve(t *testing.T, method, path, token string) (*httptest.ResponseRecorder, *Claims) {
	t.Helper()

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	NewMiddleware(testConfig, PublicPaths).Wrap(next).ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	rec, _ := serve(t, http.MethodGet, "/api/exercise/users", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, ErrMissingToken.Error(), body["error"])
}

func TestMiddlewareRejectsBadSignatureAndIssuer(t *testing.T) {
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("exercises:read")).SignedString([]byte("other"))
	require.NoError(t, err)
	rec, _ := serve(t, http.MethodGet, "/api/exercise/users", forged)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	claims := validClaims("exercises:read")
	claims["iss"] = "someone-else"
	rec, _ = serve(t, http.MethodGet, "/api/exercise/users", signToken(t, claims))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := validClaims("exercises:read")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	rec, _ = serve(t, http.MethodGet, "/api/exercise/users", signToken(t, expired))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareEnforcesScopes(t *testing.T) {
	reader := signToken(t, validClaims("exercises:read"))
	writer := signToken(t, validClaims([]string{"exercises:write"}))

	rec, claims := serve(t, http.MethodGet, "/api/exercise/log", reader)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "client-1", claims.Subject)

	rec, _ = serve(t, http.MethodPost, "/api/exercise/add", reader)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(t, http.MethodPost, "/api/exercise/add", writer)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = serve(t, http.MethodGet, "/api/exercise/users", writer)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMiddlewareSkipsPublicPaths(t *testing.T) {
	for _, path := range []string{"/", "/healthz", "/metrics", "/public/style.css"} {
		rec, _ := serve(t, http.MethodGet, path, "")
		require.Equal(t, http.StatusNoContent, rec.Code, path)
	}
}

func TestParseNormalizesScopeFormats(t *testing.T) {
	claims, err := Parse(signToken(t, validClaims("exercises:read  exercises:write")), testConfig)
	require.NoError(t, err)
	require.True(t, claims.HasScope(ScopeExercisesRead))
	require.True(t, claims.HasScope(ScopeExercisesWrite))

	claims, err = Parse(signToken(t, validClaims([]any{"exercises:read", 7, ""})), testConfig)
	require.NoError(t, err)
	require.Len(t, claims.Scopes, 1)

	var nilClaims *Claims
	require.False(t, nilClaims.HasScope(ScopeExercisesRead))
}

func TestParseRequiresSubject(t *testing.T) {
	claims := validClaims("exercises:read")
	delete(claims, "sub")
	_, err := Parse(signToken(t, claims), testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}
