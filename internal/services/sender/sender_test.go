package services

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/vibeboost/backend/internal/lib/smtp"
	"github.com/vibeboost/backend/internal/models"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) GetSMTPUser() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

type MockSMTPWriter struct {
	mock.Mock
}

func (m *MockSMTPWriter) Write(p []byte) (n int, err error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockSMTPWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func happyPathMocks(t *MockTransport) {
	mockClient := new(MockSMTPClient)
	mockWriter := new(MockSMTPWriter)

	t.On("GetSMTPUser").Return("billing@vibeboost.app")
	t.On("Connect").Return(mockClient, nil).Once()
	mockClient.On("Mail", "billing@vibeboost.app").Return(nil).Once()
	mockClient.On("Rcpt", "user@example.com").Return(nil).Once()
	mockClient.On("Data").Return(mockWriter, nil).Once()
	mockWriter.On("Write", mock.AnythingOfType("[]uint8")).Return(100, nil).Once()
	mockWriter.On("Close").Return(nil).Once()
	mockClient.On("Quit").Return(nil).Once()
	mockClient.On("Close").Return(nil).Once()
}

func notificationBody(t *testing.T, kind string) []byte {
	t.Helper()
	body, err := json.Marshal(models.BillingNotification{
		Kind:       kind,
		UserUID:    "user123",
		Email:      "user@example.com",
		PlanID:     "pro",
		OccurredAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.NoError(t, err)
	return body
}

func TestSenderService_SendBillingNotification(t *testing.T) {
	tests := []struct {
		name          string
		body          func(*testing.T) []byte
		setupMocks    func(*MockTransport)
		expectedError bool
		errorMessage  string
	}{
		{
			name: "success - renewed email",
			body: func(t *testing.T) []byte { return notificationBody(t, models.BillingNotificationRenewed) },
			setupMocks: func(t *MockTransport) {
				happyPathMocks(t)
			},
			expectedError: false,
		},
		{
			name: "success - payment failed email",
			body: func(t *testing.T) []byte { return notificationBody(t, models.BillingNotificationPaymentFailed) },
			setupMocks: func(t *MockTransport) {
				happyPathMocks(t)
			},
			expectedError: false,
		},
		{
			name: "invalid JSON",
			body: func(_ *testing.T) []byte { return []byte(`invalid json`) },
			setupMocks: func(_ *MockTransport) {
				// No transport calls expected for invalid JSON
			},
			expectedError: true,
			errorMessage:  "error unmarshalling message",
		},
		{
			name: "unknown kind is skipped",
			body: func(t *testing.T) []byte { return notificationBody(t, "something_else") },
			setupMocks: func(_ *MockTransport) {
				// No transport calls expected for unknown kinds
			},
			expectedError: false,
		},
		{
			name: "missing email is skipped",
			body: func(t *testing.T) []byte {
				body, err := json.Marshal(models.BillingNotification{
					Kind:    models.BillingNotificationRenewed,
					UserUID: "user123",
				})
				assert.NoError(t, err)
				return body
			},
			setupMocks: func(_ *MockTransport) {
				// No transport calls expected without a recipient
			},
			expectedError: false,
		},
		{
			name: "SMTP connection error",
			body: func(t *testing.T) []byte { return notificationBody(t, models.BillingNotificationRenewed) },
			setupMocks: func(t *MockTransport) {
				t.On("GetSMTPUser").Return("billing@vibeboost.app")
				t.On("Connect").Return(nil, errors.New("connection error")).Once()
			},
			expectedError: true,
			errorMessage:  "connection error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			service := NewSenderService(newNoopLogger(), transport)

			tt.setupMocks(transport)

			err := service.SendBillingNotification(tt.body(t))

			if tt.expectedError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
			} else {
				assert.NoError(t, err)
			}

			transport.AssertExpectations(t)
		})
	}
}

func TestSenderService_SMTPErrorHandling(t *testing.T) {
	tests := []struct {
		name         string
		setupMocks   func(*MockTransport)
		errorMessage string
	}{
		{
			name: "SMTP Mail error",
			setupMocks: func(t *MockTransport) {
				mockClient := new(MockSMTPClient)

				t.On("GetSMTPUser").Return("billing@vibeboost.app")
				t.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "billing@vibeboost.app").Return(errors.New("mail error")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			errorMessage: "mail error",
		},
		{
			name: "SMTP Rcpt error",
			setupMocks: func(t *MockTransport) {
				mockClient := new(MockSMTPClient)

				t.On("GetSMTPUser").Return("billing@vibeboost.app")
				t.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "billing@vibeboost.app").Return(nil).Once()
				mockClient.On("Rcpt", "user@example.com").Return(errors.New("rcpt error")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			errorMessage: "rcpt error",
		},
		{
			name: "SMTP Data error",
			setupMocks: func(t *MockTransport) {
				mockClient := new(MockSMTPClient)

				t.On("GetSMTPUser").Return("billing@vibeboost.app")
				t.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "billing@vibeboost.app").Return(nil).Once()
				mockClient.On("Rcpt", "user@example.com").Return(nil).Once()
				mockClient.On("Data").Return(nil, errors.New("data error")).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			errorMessage: "data error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			service := NewSenderService(newNoopLogger(), transport)

			tt.setupMocks(transport)

			err := service.SendBillingNotification(notificationBody(t, models.BillingNotificationRenewed))

			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMessage)

			transport.AssertExpectations(t)
		})
	}
}
