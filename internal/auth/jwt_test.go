package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/rewear-be/internal/models"
)

var testUser = models.User{ID: "user-1", Email: "ana@example.com", Role: models.RoleMember}

func newTestManager() *TokenManager {
	return NewTokenManager("test-secret", "rewear", 15*time.Minute)
}

func TestIssueAndParse(t *testing.T) {
	tm := newTestManager()

	token, expiresAt, err := tm.IssueToken(testUser)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleMember, claims.Role)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
	assert.False(t, claims.IsAdmin())
}

func TestParse_Expired(t *testing.T) {
	tm := newTestManager()
	past := tm.WithClock(func() time.Time { return time.Now().Add(-time.Hour) })

	token, _, err := past.IssueToken(testUser)
	require.NoError(t, err)

	_, err = tm.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParse_Invalid(t *testing.T) {
	tm := newTestManager()

	other := NewTokenManager("another-secret", "rewear", time.Minute)
	foreign, _, err := other.IssueToken(testUser)
	require.NoError(t, err)

	wrongIssuer, _, err := NewTokenManager("test-secret", "someone-else", time.Minute).IssueToken(testUser)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1", "iss": "rewear"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": foreign,
		"wrong issuer": wrongIssuer,
		"alg none":     none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tm.Parse(token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}
}

func TestValidate_Sources(t *testing.T) {
	tm := newTestManager()
	token, _, err := tm.IssueToken(testUser)
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		_, err := tm.Validate(r)
		assert.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		claims, err := tm.Validate(r)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
	})

	t.Run("non bearer scheme", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		r.Header.Set("Authorization", "Basic abc")
		_, err := tm.Validate(r)
		assert.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/items", nil)
		r.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})
		_, err := tm.Validate(r)
		require.NoError(t, err)
	})

	t.Run("query only on upgrade", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/api/ws?token="+token, nil)
		_, err := tm.Validate(r)
		assert.ErrorIs(t, err, ErrTokenMissing)

		r.Header.Set("Upgrade", "websocket")
		_, err = tm.Validate(r)
		require.NoError(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	tm := newTestManager()
	var gotErr error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}

	var seen *Claims
	handler := Middleware(tm, onError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.ErrorIs(t, gotErr, ErrTokenMissing)
	assert.Nil(t, seen)

	token, _, err := tm.IssueToken(testUser)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "user-1", seen.UserID)
}

func TestRequireRole(t *testing.T) {
	var gotErr error
	onError := func(w http.ResponseWriter, r *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusForbidden)
	}
	handler := RequireRole(models.RoleAdmin, onError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithClaims(req.Context(), &Claims{UserID: "u", Role: models.RoleMember}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.ErrorIs(t, gotErr, ErrForbidden)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithClaims(req.Context(), &Claims{UserID: "a", Role: models.RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "battery staple"), ErrPasswordMismatch)
}
