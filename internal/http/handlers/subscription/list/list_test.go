package list

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

	"github.com/magabrotheeeer/subscription-radar/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) List(ctx context.Context, userUID uuid.UUID) ([]models.Subscription, error) {
	args := m.Called(ctx, userUID)
	subs, _ := args.Get(0).([]models.Subscription)
	return subs, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requestWithUser(userUID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	ctx := context.WithValue(req.Context(), middlewarectx.UserUID, userUID)
	return req.WithContext(ctx)
}

func TestListHandler_Success(t *testing.T) {
	userUID := uuid.New()
	mockService := new(MockService)
	mockService.On("List", mock.Anything, userUID).Return([]models.Subscription{
		{ID: 1, UserUID: userUID, VendorName: "Spotify Premium", Status: models.StatusActive},
		{ID: 2, UserUID: userUID, VendorName: "Netflix", Status: models.StatusCanceled},
	}, nil)

	handler := New(newNoopLogger(), mockService)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, requestWithUser(userUID))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":2`)
	assert.Contains(t, rec.Body.String(), "Spotify Premium")
	mockService.AssertExpectations(t)
}

func TestListHandler_NoUserInContext(t *testing.T) {
	mockService := new(MockService)
	handler := New(newNoopLogger(), mockService)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	mockService.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestListHandler_ServiceError(t *testing.T) {
	userUID := uuid.New()
	mockService := new(MockService)
	mockService.On("List", mock.Anything, userUID).Return(nil, errors.New("db down"))

	handler := New(newNoopLogger(), mockService)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, requestWithUser(userUID))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to list subscriptions")
}
