package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vibeboost/backend/internal/http/middlewarectx"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/plan"
	"github.com/vibeboost/backend/internal/services/subscription"
)

// MockService реализует интерфейс checkout.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) CreateCheckout(ctx context.Context, userUID, email, planID string) (string, error) {
	args := m.Called(ctx, userUID, email, planID)
	return args.String(0), args.Error(1)
}

func TestCheckoutHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	tests := []struct {
		name           string
		requestBody    interface{}
		userUID        string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "успешное создание checkout-сессии",
			requestBody: models.DummyCheckoutRequest{PlanID: "pro"},
			userUID:     "user123",
			setupMock: func(m *MockService) {
				m.On("CreateCheckout", mock.Anything, "user123", "user@example.com", "pro").
					Return("https://checkout.stripe.com/c/pay_123", nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"checkout_url":"https://checkout.stripe.com/c/pay_123"}}`,
		},
		{
			name:           "некорректный JSON",
			requestBody:    "not a json",
			userUID:        "user123",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"invalid request body"}`,
		},
		{
			name:           "невалидные данные",
			requestBody:    models.DummyCheckoutRequest{PlanID: ""},
			userUID:        "user123",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `{"status":"Error","error":"field PlanID is a required field"}`,
		},
		{
			name:           "отсутствует авторизация",
			requestBody:    models.DummyCheckoutRequest{PlanID: "pro"},
			userUID:        "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"unauthorized"}`,
		},
		{
			name:        "неизвестный план",
			requestBody: models.DummyCheckoutRequest{PlanID: "platinum"},
			userUID:     "user123",
			setupMock: func(m *MockService) {
				m.On("CreateCheckout", mock.Anything, "user123", "user@example.com", "platinum").
					Return("", plan.ErrUnknownPlan)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"unknown plan"}`,
		},
		{
			name:        "план недоступен для самостоятельной покупки",
			requestBody: models.DummyCheckoutRequest{PlanID: "enterprise"},
			userUID:     "user123",
			setupMock: func(m *MockService) {
				m.On("CreateCheckout", mock.Anything, "user123", "user@example.com", "enterprise").
					Return("", subscription.ErrPlanNotSelfService)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"Error","error":"plan is not available for checkout"}`,
		},
		{
			name:        "ошибка платёжного провайдера",
			requestBody: models.DummyCheckoutRequest{PlanID: "pro"},
			userUID:     "user123",
			setupMock: func(m *MockService) {
				m.On("CreateCheckout", mock.Anything, "user123", "user@example.com", "pro").
					Return("", errors.New("stripe unavailable"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"could not create checkout session"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			var body []byte
			var err error
			if str, ok := tt.requestBody.(string); ok {
				body = []byte(str)
			} else {
				body, err = json.Marshal(tt.requestBody)
				require.NoError(t, err)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/subscription/checkout", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			ctx := context.WithValue(req.Context(), middlewarectx.User, tt.userUID)
			ctx = context.WithValue(ctx, middlewarectx.Email, "user@example.com")
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
