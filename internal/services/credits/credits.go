// Package credits содержит бизнес-логику кредитного счёта пользователя:
// списание, возврат, продление и сброс бесплатного начисления.
// Все изменения баланса проходят через условную запись хранилища
// (compare-and-set) с ограниченным числом повторов — сервис может работать
// в нескольких процессах одновременно, и внутрипроцессные блокировки
// здесь не помогают.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/plan"
	"github.com/vibeboost/backend/internal/storage/repository"
)

var (
	// ErrInsufficientCredits на счёте недостаточно кредитов; баланс не изменён.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrConcurrencyExhausted условная запись проиграла гонку на всех попытках;
	// операцию безопасно повторить целиком.
	ErrConcurrencyExhausted = errors.New("concurrent balance updates exhausted retries")
	// ErrInvalidAmount сумма операции должна быть положительной.
	ErrInvalidAmount = errors.New("amount must be positive")
)

const (
	// maxCasAttempts ограничивает число повторов условной записи баланса.
	maxCasAttempts = 5
	// resetPeriod длительность расчётного периода.
	resetPeriod = 30 * 24 * time.Hour
)

// LedgerStore определяет методы хранилища кредитных счетов.
type LedgerStore interface {
	// GetCreditAccount возвращает счёт пользователя.
	GetCreditAccount(ctx context.Context, userUID string) (*models.CreditAccount, error)
	// CreateCreditAccountIfAbsent создаёт счёт, если его ещё нет.
	CreateCreditAccountIfAbsent(ctx context.Context, userUID string, balance int, planID string, resetAt, nextResetAt time.Time) (*models.CreditAccount, error)
	// CompareAndSetBalance условно записывает баланс.
	CompareAndSetBalance(ctx context.Context, userUID string, expected, newBalance int) (bool, error)
	// SetPlanAndAllowance безусловно перезаписывает план, баланс и период.
	SetPlanAndAllowance(ctx context.Context, userUID, planID string, newBalance int, resetAt, nextResetAt time.Time) error
	// UpdatePlan меняет план без изменения баланса.
	UpdatePlan(ctx context.Context, userUID, planID string) error
}

// CreditService реализует бизнес-логику кредитного счёта.
type CreditService struct {
	repo LedgerStore
	log  *slog.Logger
	now  func() time.Time
}

// NewCreditService создает новый экземпляр CreditService.
func NewCreditService(repo LedgerStore, log *slog.Logger) *CreditService {
	return &CreditService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// EnsureAccount лениво создаёт кредитный счёт с начислением бесплатного плана.
// Повторный вызов не имеет побочных эффектов и возвращает существующую запись.
func (s *CreditService) EnsureAccount(ctx context.Context, userUID string) (*models.CreditAccount, error) {
	const op = "credits.EnsureAccount"

	now := s.now()
	acc, err := s.repo.CreateCreditAccountIfAbsent(ctx, userUID,
		plan.Allowance(plan.Free), plan.Free, now, now.Add(resetPeriod))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return acc, nil
}

// GetBalance возвращает текущий баланс пользователя для отображения.
// При любой ошибке чтения возвращает 0: сбой хранилища не должен
// открывать неучтённое использование.
func (s *CreditService) GetBalance(ctx context.Context, userUID string) int {
	acc, err := s.repo.GetCreditAccount(ctx, userUID)
	if err != nil {
		if !errors.Is(err, repository.ErrAccountNotFound) {
			s.log.Warn("failed to read balance, defaulting to zero",
				slog.String("user_uid", userUID), sl.Err(err))
		}
		return 0
	}
	return acc.Balance
}

// Consume списывает amount кредитов со счёта пользователя и возвращает
// новый баланс. Списание атомарно на уровне счёта: два конкурентных вызова
// никогда не спишут одни и те же кредиты. При недостатке кредитов баланс
// не меняется.
func (s *CreditService) Consume(ctx context.Context, userUID string, amount int) (int, error) {
	const op = "credits.Consume"
	if amount <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}
	if _, err := s.EnsureAccount(ctx, userUID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 0; attempt < maxCasAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return 0, fmt.Errorf("%s: %w", op, err)
			}
		}

		acc, err := s.repo.GetCreditAccount(ctx, userUID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		if acc.Balance < amount {
			return 0, fmt.Errorf("%s: %w", op, ErrInsufficientCredits)
		}

		ok, err := s.repo.CompareAndSetBalance(ctx, userUID, acc.Balance, acc.Balance-amount)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return acc.Balance - amount, nil
		}
		s.log.Debug("balance write lost the race, retrying",
			slog.String("user_uid", userUID), slog.Int("attempt", attempt+1))
	}
	return 0, fmt.Errorf("%s: %w", op, ErrConcurrencyExhausted)
}

// Refund возвращает amount кредитов на счёт пользователя. Возврат никогда
// не отклоняется из-за состояния баланса; используется вызывающей стороной
// как компенсация после неудавшейся платной операции, только если Consume
// заведомо успел завершиться.
func (s *CreditService) Refund(ctx context.Context, userUID string, amount int) (int, error) {
	const op = "credits.Refund"
	if amount <= 0 {
		return 0, fmt.Errorf("%s: %w", op, ErrInvalidAmount)
	}
	if _, err := s.EnsureAccount(ctx, userUID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	for attempt := 0; attempt < maxCasAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return 0, fmt.Errorf("%s: %w", op, err)
			}
		}

		acc, err := s.repo.GetCreditAccount(ctx, userUID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		ok, err := s.repo.CompareAndSetBalance(ctx, userUID, acc.Balance, acc.Balance+amount)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return acc.Balance + amount, nil
		}
		s.log.Debug("balance write lost the race, retrying",
			slog.String("user_uid", userUID), slog.Int("attempt", attempt+1))
	}
	return 0, fmt.Errorf("%s: %w", op, ErrConcurrencyExhausted)
}

// Renew безусловно устанавливает баланс в allowance, план в planID
// и сдвигает границы расчётного периода. Продление всегда побеждает
// конкурентные списания: оно отмечает начало нового оплаченного периода.
func (s *CreditService) Renew(ctx context.Context, userUID, planID string, allowance int) (int, error) {
	const op = "credits.Renew"
	if !plan.IsValid(planID) {
		return 0, fmt.Errorf("%s: %w", op, plan.ErrUnknownPlan)
	}
	if _, err := s.EnsureAccount(ctx, userUID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	if err := s.repo.SetPlanAndAllowance(ctx, userUID, planID, allowance, now, now.Add(resetPeriod)); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("renewed credit allowance",
		slog.String("user_uid", userUID), slog.String("plan", planID), slog.Int("allowance", allowance))
	return allowance, nil
}

// SetPlan меняет план пользователя без изменения баланса. Используется
// для учёта отложенного даунгрейда, не сопровождающегося начислением.
func (s *CreditService) SetPlan(ctx context.Context, userUID, planID string) error {
	const op = "credits.SetPlan"
	if !plan.IsValid(planID) {
		return fmt.Errorf("%s: %w", op, plan.ErrUnknownPlan)
	}
	if err := s.repo.UpdatePlan(ctx, userUID, planID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MaybeResetFreeAllowance сбрасывает начисление бесплатного плана, если
// расчётный период истёк. Возвращает новый баланс и true, если сброс
// произошёл. Для платных планов и незавершённых периодов ничего не делает —
// продление платных планов приходит от платёжного провайдера.
func (s *CreditService) MaybeResetFreeAllowance(ctx context.Context, userUID string) (int, bool, error) {
	const op = "credits.MaybeResetFreeAllowance"

	acc, err := s.repo.GetCreditAccount(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if acc.PlanID != plan.Free {
		return 0, false, nil
	}
	if s.now().Before(acc.NextResetAt) {
		return 0, false, nil
	}

	allowance := plan.Allowance(plan.Free)
	newBalance, err := s.Renew(ctx, userUID, plan.Free, allowance)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return newBalance, true, nil
}

// sleepBackoff ждёт перед повтором условной записи. Пауза растёт с номером
// попытки и содержит случайную добавку, чтобы конкурирующие процессы
// не синхронизировались на одних и тех же повторах.
func sleepBackoff(ctx context.Context, attempt int) error {
	delay := time.Duration(attempt)*15*time.Millisecond +
		time.Duration(rand.Intn(10))*time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
