package middlewarectx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) ValidateToken(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJWTMiddleware_ValidTokenPopulatesContext(t *testing.T) {
	svc := new(AuthServiceMock)
	uid := uuid.New()
	svc.On("ValidateToken", mock.Anything, "valid-token").Return(&models.User{
		UID:      uid,
		Username: "alice",
		Role:     "user",
	}, nil)

	var gotUID uuid.UUID
	var gotUser, gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUID, _ = UserUIDFromContext(r.Context())
		gotUser, _ = r.Context().Value(User).(string)
		gotRole, _ = r.Context().Value(Role).(string)
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTMiddleware(svc, newNoopLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uid, gotUID)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "user", gotRole)
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	svc := new(AuthServiceMock)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("next handler must not be called")
	})

	handler := JWTMiddleware(svc, newNoopLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	svc := new(AuthServiceMock)
	svc.On("ValidateToken", mock.Anything, "bad-token").Return(nil, errors.New("invalid token"))

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("next handler must not be called")
	})

	handler := JWTMiddleware(svc, newNoopLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMiddleware_NonBearerScheme(t *testing.T) {
	svc := new(AuthServiceMock)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("next handler must not be called")
	})

	handler := JWTMiddleware(svc, newNoopLogger())(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
