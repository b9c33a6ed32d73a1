package duplicates

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/subscription-radar/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Duplicates(ctx context.Context, userUID uuid.UUID) ([]models.DuplicateGroup, error) {
	args := m.Called(ctx, userUID)
	groups, _ := args.Get(0).([]models.DuplicateGroup)
	return groups, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requestWithUser(userUID uuid.UUID) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/duplicates", nil)
	ctx := context.WithValue(req.Context(), middlewarectx.UserUID, userUID)
	return req.WithContext(ctx)
}

func TestDuplicatesHandler_Success(t *testing.T) {
	userUID := uuid.New()
	mockService := new(MockService)
	mockService.On("Duplicates", mock.Anything, userUID).Return([]models.DuplicateGroup{
		{
			SubscriptionIDs: []int64{1, 2},
			VendorName:      "Spotify Premium",
			Amount:          decimal.NewFromFloat(11.99),
			Currency:        "EUR",
			Reason:          "possible duplicate subscriptions: same vendor and price",
		},
	}, nil)

	handler := New(newNoopLogger(), mockService)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, requestWithUser(userUID))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), "Spotify Premium")
	mockService.AssertExpectations(t)
}

func TestDuplicatesHandler_EmptyResultIsOK(t *testing.T) {
	userUID := uuid.New()
	mockService := new(MockService)
	mockService.On("Duplicates", mock.Anything, userUID).Return(nil, nil)

	handler := New(newNoopLogger(), mockService)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, requestWithUser(userUID))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
	assert.Contains(t, rec.Body.String(), `"duplicates":[]`)
}

func TestDuplicatesHandler_NoUserInContext(t *testing.T) {
	mockService := new(MockService)
	handler := New(newNoopLogger(), mockService)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/duplicates", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	mockService.AssertNotCalled(t, "Duplicates", mock.Anything, mock.Anything)
}

func TestDuplicatesHandler_ServiceError(t *testing.T) {
	userUID := uuid.New()
	mockService := new(MockService)
	mockService.On("Duplicates", mock.Anything, userUID).Return(nil, errors.New("db down"))

	handler := New(newNoopLogger(), mockService)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, requestWithUser(userUID))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to find duplicate subscriptions")
}
