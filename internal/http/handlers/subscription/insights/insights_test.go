package insights

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/subscription-radar/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-radar/internal/models"
	"github.com/magabrotheeeer/subscription-radar/internal/storage/repository"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Insights(ctx context.Context, userUID uuid.UUID, id int64) (*models.SubscriptionInsights, error) {
	args := m.Called(ctx, userUID, id)
	res, _ := args.Get(0).(*models.SubscriptionInsights)
	return res, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requestWithUser(userUID uuid.UUID, id string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/"+id+"/insights", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middlewarectx.UserUID, userUID)
	return req.WithContext(ctx)
}

func TestInsightsHandler(t *testing.T) {
	userUID := uuid.New()
	cadence := 30

	tests := []struct {
		name           string
		id             string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешный ответ",
			id:   "7",
			setupMock: func(m *MockService) {
				m.On("Insights", mock.Anything, userUID, int64(7)).Return(&models.SubscriptionInsights{
					SubscriptionID: 7,
					VendorName:     "Spotify Premium",
					Confidence:     0.85,
					Reasons:        []string{"Found 4 charges for this vendor."},
					CadenceDays:    &cadence,
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"vendor_name":"Spotify Premium"`,
		},
		{
			name:           "некорректный id",
			id:             "abc",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "invalid subscription id",
		},
		{
			name: "подписка не найдена",
			id:   "404",
			setupMock: func(m *MockService) {
				m.On("Insights", mock.Anything, userUID, int64(404)).
					Return(nil, repository.ErrSubscriptionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "subscription not found",
		},
		{
			name: "ошибка сервиса",
			id:   "7",
			setupMock: func(m *MockService) {
				m.On("Insights", mock.Anything, userUID, int64(7)).
					Return(nil, errors.New("db down"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "failed to get insights",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(newNoopLogger(), mockService)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, requestWithUser(userUID, tt.id))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}

func TestInsightsHandler_NoUserInContext(t *testing.T) {
	mockService := new(MockService)
	handler := New(newNoopLogger(), mockService)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/7/insights", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
