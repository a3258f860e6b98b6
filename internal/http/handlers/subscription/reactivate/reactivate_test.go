package reactivate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vibeboost/backend/internal/http/middlewarectx"
	"github.com/vibeboost/backend/internal/services/subscription"
)

// MockService реализует интерфейс reactivate.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Reactivate(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

func TestReactivateHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name           string
		userUID        string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "отложенная отмена снята",
			userUID: "user123",
			setupMock: func(m *MockService) {
				m.On("Reactivate", mock.Anything, "user123").Return(nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"cancel_at_period_end":false}}`,
		},
		{
			name:           "отсутствует авторизация",
			userUID:        "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"unauthorized"}`,
		},
		{
			name:    "нет активной подписки",
			userUID: "user123",
			setupMock: func(m *MockService) {
				m.On("Reactivate", mock.Anything, "user123").
					Return(subscription.ErrNoActiveSubscription)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"no active subscription"}`,
		},
		{
			name:    "подписка не ожидает отмены",
			userUID: "user123",
			setupMock: func(m *MockService) {
				m.On("Reactivate", mock.Anything, "user123").
					Return(subscription.ErrNotPendingCancel)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"subscription is not scheduled for cancellation"}`,
		},
		{
			name:    "ошибка платёжного провайдера",
			userUID: "user123",
			setupMock: func(m *MockService) {
				m.On("Reactivate", mock.Anything, "user123").
					Return(errors.New("stripe unavailable"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not reactivate subscription"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/subscription/reactivate", nil)

			ctx := context.WithValue(req.Context(), middlewarectx.User, tt.userUID)
			ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-id")
			req = req.WithContext(ctx)

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
			mockService.AssertExpectations(t)
		})
	}
}
