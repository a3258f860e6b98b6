package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vibeboost/backend/internal/filestore"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/services/credits"
)

type LedgerMock struct{ mock.Mock }

func (m *LedgerMock) Consume(ctx context.Context, userUID string, amount int) (int, error) {
	args := m.Called(ctx, userUID, amount)
	return args.Int(0), args.Error(1)
}
func (m *LedgerMock) Refund(ctx context.Context, userUID string, amount int) (int, error) {
	args := m.Called(ctx, userUID, amount)
	return args.Int(0), args.Error(1)
}

type GeneratorMock struct{ mock.Mock }

func (m *GeneratorMock) Generate(ctx context.Context, sourceURL, prompt string, quantity int) ([]string, error) {
	args := m.Called(ctx, sourceURL, prompt, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type FileStoreMock struct{ mock.Mock }

func (m *FileStoreMock) ResolveUpload(ctx context.Context, userUID, fileID string) (string, error) {
	args := m.Called(ctx, userUID, fileID)
	return args.String(0), args.Error(1)
}
func (m *FileStoreMock) SaveGenerated(ctx context.Context, userUID, sourceURL string) (*models.GeneratedImage, error) {
	args := m.Called(ctx, userUID, sourceURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GeneratedImage), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestGenerationService_Generate(t *testing.T) {
	req := models.DummyGenerateRequest{
		FileID:   "c2d29867-3d0b-d497-9191-18a9d8ee7830",
		Quantity: 2,
		Prompt:   "studio light",
	}

	tests := []struct {
		name       string
		setupMocks func(l *LedgerMock, g *GeneratorMock, f *FileStoreMock)
		wantImages int
		wantRest   int
		wantErr    error
	}{
		{
			name: "success",
			setupMocks: func(l *LedgerMock, g *GeneratorMock, f *FileStoreMock) {
				f.On("ResolveUpload", mock.Anything, "user1", req.FileID).
					Return("https://s3.example.com/uploads/user1/src.png", nil).Once()
				l.On("Consume", mock.Anything, "user1", 10).Return(90, nil).Once()
				g.On("Generate", mock.Anything, "https://s3.example.com/uploads/user1/src.png", "studio light", 2).
					Return([]string{"https://gen.example.com/1.png", "https://gen.example.com/2.png"}, nil).Once()
				f.On("SaveGenerated", mock.Anything, "user1", "https://gen.example.com/1.png").
					Return(&models.GeneratedImage{Filename: "1.png", URL: "https://s3/1.png"}, nil).Once()
				f.On("SaveGenerated", mock.Anything, "user1", "https://gen.example.com/2.png").
					Return(&models.GeneratedImage{Filename: "2.png", URL: "https://s3/2.png"}, nil).Once()
			},
			wantImages: 2,
			wantRest:   90,
		},
		{
			name: "insufficient credits, no generation attempted",
			setupMocks: func(l *LedgerMock, _ *GeneratorMock, f *FileStoreMock) {
				f.On("ResolveUpload", mock.Anything, "user1", req.FileID).
					Return("https://s3.example.com/uploads/user1/src.png", nil).Once()
				l.On("Consume", mock.Anything, "user1", 10).Return(0, credits.ErrInsufficientCredits).Once()
			},
			wantErr: credits.ErrInsufficientCredits,
		},
		{
			name: "generator failure refunds credits",
			setupMocks: func(l *LedgerMock, g *GeneratorMock, f *FileStoreMock) {
				f.On("ResolveUpload", mock.Anything, "user1", req.FileID).
					Return("https://s3.example.com/uploads/user1/src.png", nil).Once()
				l.On("Consume", mock.Anything, "user1", 10).Return(90, nil).Once()
				g.On("Generate", mock.Anything, mock.Anything, mock.Anything, 2).
					Return(nil, errors.New("generator timeout")).Once()
				l.On("Refund", mock.Anything, "user1", 10).Return(100, nil).Once()
			},
			wantErr: errors.New("generator timeout"),
		},
		{
			name: "save failure refunds credits",
			setupMocks: func(l *LedgerMock, g *GeneratorMock, f *FileStoreMock) {
				f.On("ResolveUpload", mock.Anything, "user1", req.FileID).
					Return("https://s3.example.com/uploads/user1/src.png", nil).Once()
				l.On("Consume", mock.Anything, "user1", 10).Return(90, nil).Once()
				g.On("Generate", mock.Anything, mock.Anything, mock.Anything, 2).
					Return([]string{"https://gen.example.com/1.png"}, nil).Once()
				f.On("SaveGenerated", mock.Anything, "user1", "https://gen.example.com/1.png").
					Return(nil, errors.New("s3 down")).Once()
				l.On("Refund", mock.Anything, "user1", 10).Return(100, nil).Once()
			},
			wantErr: errors.New("s3 down"),
		},
		{
			name: "refund failure surfaces both errors",
			setupMocks: func(l *LedgerMock, g *GeneratorMock, f *FileStoreMock) {
				f.On("ResolveUpload", mock.Anything, "user1", req.FileID).
					Return("https://s3.example.com/uploads/user1/src.png", nil).Once()
				l.On("Consume", mock.Anything, "user1", 10).Return(90, nil).Once()
				g.On("Generate", mock.Anything, mock.Anything, mock.Anything, 2).
					Return(nil, errors.New("generator timeout")).Once()
				l.On("Refund", mock.Anything, "user1", 10).Return(0, errors.New("db down")).Once()
			},
			wantErr: errors.New("refund failed"),
		},
		{
			name: "missing source skips consume",
			setupMocks: func(_ *LedgerMock, _ *GeneratorMock, f *FileStoreMock) {
				f.On("ResolveUpload", mock.Anything, "user1", req.FileID).
					Return("", filestore.ErrNotFound).Once()
			},
			wantErr: ErrSourceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := new(LedgerMock)
			generator := new(GeneratorMock)
			files := new(FileStoreMock)
			tt.setupMocks(ledger, generator, files)
			svc := NewGenerationService(ledger, generator, files, 5, newNoopLogger())

			got, err := svc.Generate(context.Background(), "user1", req)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.wantErr.Error())
			} else {
				require.NoError(t, err)
				assert.Len(t, got.Images, tt.wantImages)
				assert.Equal(t, tt.wantRest, got.CreditsRemaining)
			}
			ledger.AssertExpectations(t)
			generator.AssertExpectations(t)
			files.AssertExpectations(t)
		})
	}
}
