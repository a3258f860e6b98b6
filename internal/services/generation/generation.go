// Package generation содержит оркестрацию платной генерации изображений:
// списание кредитов, вызов генератора и компенсирующий возврат при сбое.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vibeboost/backend/internal/filestore"
	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/models"
)

// ErrSourceNotFound исходный файл не найден или принадлежит другому пользователю.
var ErrSourceNotFound = errors.New("source file not found")

// CreditLedger определяет операции кредитного сервиса для платной генерации.
type CreditLedger interface {
	Consume(ctx context.Context, userUID string, amount int) (int, error)
	Refund(ctx context.Context, userUID string, amount int) (int, error)
}

// Generator определяет клиент внешнего сервиса генерации изображений.
type Generator interface {
	Generate(ctx context.Context, sourceURL, prompt string, quantity int) ([]string, error)
}

// FileStore определяет операции объектного хранилища для генерации.
type FileStore interface {
	ResolveUpload(ctx context.Context, userUID, fileID string) (string, error)
	SaveGenerated(ctx context.Context, userUID, sourceURL string) (*models.GeneratedImage, error)
}

// GenerationService реализует платную генерацию изображений.
type GenerationService struct {
	ledger       CreditLedger
	generator    Generator
	files        FileStore
	costPerImage int
	log          *slog.Logger
}

// NewGenerationService создает новый экземпляр GenerationService.
func NewGenerationService(ledger CreditLedger, generator Generator, files FileStore,
	costPerImage int, log *slog.Logger) *GenerationService {
	return &GenerationService{
		ledger:       ledger,
		generator:    generator,
		files:        files,
		costPerImage: costPerImage,
		log:          log,
	}
}

// Generate выполняет платную генерацию: списывает кредиты, запускает
// генератор и сохраняет результат. Если после успешного списания любая
// из стадий падает, списанные кредиты возвращаются на счёт. Возврат
// выполняется только после заведомо успешного списания: неуспешное
// списание компенсировать нечем.
func (s *GenerationService) Generate(ctx context.Context, userUID string,
	req models.DummyGenerateRequest) (*models.GenerationResult, error) {
	const op = "generation.Generate"
	log := s.log.With(slog.String("op", op), slog.String("user_uid", userUID))

	sourceURL, err := s.files.ResolveUpload(ctx, userUID, req.FileID)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSourceNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cost := req.Quantity * s.costPerImage
	remaining, err := s.ledger.Consume(ctx, userUID, cost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("credits consumed for generation",
		slog.Int("cost", cost), slog.Int("remaining", remaining))

	urls, err := s.generator.Generate(ctx, sourceURL, req.Prompt, req.Quantity)
	if err != nil {
		return nil, s.compensate(ctx, userUID, cost, fmt.Errorf("%s: %w", op, err))
	}

	images := make([]models.GeneratedImage, 0, len(urls))
	for _, url := range urls {
		img, err := s.files.SaveGenerated(ctx, userUID, url)
		if err != nil {
			return nil, s.compensate(ctx, userUID, cost, fmt.Errorf("%s: %w", op, err))
		}
		images = append(images, *img)
	}

	return &models.GenerationResult{
		FileID:           req.FileID,
		Images:           images,
		CreditsRemaining: remaining,
	}, nil
}

// compensate возвращает списанные кредиты после сбоя платной стадии.
// Сбой самого возврата не скрывает исходную ошибку: обе попадают в результат.
func (s *GenerationService) compensate(ctx context.Context, userUID string, cost int, cause error) error {
	if _, err := s.ledger.Refund(ctx, userUID, cost); err != nil {
		s.log.Error("failed to refund credits after generation failure",
			slog.String("user_uid", userUID), slog.Int("amount", cost), sl.Err(err))
		return errors.Join(cause, fmt.Errorf("refund failed: %w", err))
	}
	s.log.Info("credits refunded after generation failure",
		slog.String("user_uid", userUID), slog.Int("amount", cost))
	return cause
}
