package portal

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

// MockService реализует интерфейс portal.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) BillingPortalURL(ctx context.Context, userUID string) (string, error) {
	args := m.Called(ctx, userUID)
	return args.String(0), args.Error(1)
}

func TestPortalHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name           string
		userUID        string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "ссылка на портал выдана",
			userUID: "user123",
			setupMock: func(m *MockService) {
				m.On("BillingPortalURL", mock.Anything, "user123").
					Return("https://billing.stripe.com/p/session_123", nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"url":"https://billing.stripe.com/p/session_123"}}`,
		},
		{
			name:           "отсутствует авторизация",
			userUID:        "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"unauthorized"}`,
		},
		{
			name:    "нет подписки",
			userUID: "user123",
			setupMock: func(m *MockService) {
				m.On("BillingPortalURL", mock.Anything, "user123").
					Return("", subscription.ErrNoActiveSubscription)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `{"status":"Error","error":"no active subscription"}`,
		},
		{
			name:    "ошибка платёжного провайдера",
			userUID: "user123",
			setupMock: func(m *MockService) {
				m.On("BillingPortalURL", mock.Anything, "user123").
					Return("", errors.New("stripe unavailable"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not create billing portal session"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/subscription/portal", nil)

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
