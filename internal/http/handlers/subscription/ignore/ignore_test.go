package ignore

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
	"github.com/magabrotheeeer/subscription-radar/internal/storage/repository"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Ignore(ctx context.Context, userUID uuid.UUID, id int64) error {
	args := m.Called(ctx, userUID, id)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requestWithUser(userUID uuid.UUID, id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/"+id+"/ignore", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, middlewarectx.UserUID, userUID)
	return req.WithContext(ctx)
}

func TestIgnoreHandler(t *testing.T) {
	userUID := uuid.New()

	tests := []struct {
		name           string
		id             string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешное скрытие",
			id:   "5",
			setupMock: func(m *MockService) {
				m.On("Ignore", mock.Anything, userUID, int64(5)).Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"ignored"`,
		},
		{
			name:           "некорректный id",
			id:             "-1",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "invalid subscription id",
		},
		{
			name: "подписка не найдена",
			id:   "404",
			setupMock: func(m *MockService) {
				m.On("Ignore", mock.Anything, userUID, int64(404)).
					Return(repository.ErrSubscriptionNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "subscription not found",
		},
		{
			name: "ошибка сервиса",
			id:   "5",
			setupMock: func(m *MockService) {
				m.On("Ignore", mock.Anything, userUID, int64(5)).Return(errors.New("db down"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "failed to ignore subscription",
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
