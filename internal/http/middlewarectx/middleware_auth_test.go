package middlewarectx

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	supajwt "github.com/vibeboost/backend/internal/lib/jwt"
)

type VerifierMock struct{ mock.Mock }

func (m *VerifierMock) ParseToken(tokenStr string) (*supajwt.SupabaseClaims, error) {
	args := m.Called(tokenStr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*supajwt.SupabaseClaims), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestAuthMiddleware(t *testing.T) {
	validClaims := &supajwt.SupabaseClaims{Email: "user1@example.com"}
	validClaims.Subject = "uid-1"

	tests := []struct {
		name       string
		authHeader string
		setupMocks func(v *VerifierMock)
		wantStatus int
		wantUID    string
	}{
		{
			name:       "valid token passes user to context",
			authHeader: "Bearer good-token",
			setupMocks: func(v *VerifierMock) {
				v.On("ParseToken", "good-token").Return(validClaims, nil).Once()
			},
			wantStatus: http.StatusOK,
			wantUID:    "uid-1",
		},
		{
			name:       "missing header rejected",
			authHeader: "",
			setupMocks: func(_ *VerifierMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme rejected",
			authHeader: "Basic abc",
			setupMocks: func(_ *VerifierMock) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token rejected",
			authHeader: "Bearer bad-token",
			setupMocks: func(v *VerifierMock) {
				v.On("ParseToken", "bad-token").Return(nil, errors.New("signature is invalid")).Once()
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(VerifierMock)
			tt.setupMocks(verifier)

			var gotUID, gotEmail string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUID, _ = r.Context().Value(User).(string)
				gotEmail, _ = r.Context().Value(Email).(string)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/subscription/status", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			AuthMiddleware(verifier, newNoopLogger())(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantUID != "" {
				assert.Equal(t, tt.wantUID, gotUID)
				assert.Equal(t, "user1@example.com", gotEmail)
			}
			verifier.AssertExpectations(t)
		})
	}
}
