package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vibeboost/backend/internal/models"
)

// ExistsCreditAccount проверяет наличие кредитного счёта пользователя.
func (s *Storage) ExistsCreditAccount(ctx context.Context, userUID string) (bool, error) {
	const op = "storage.ExistsCreditAccount"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM user_credits WHERE user_uid = $1)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// GetCreditAccount возвращает кредитный счёт пользователя.
func (s *Storage) GetCreditAccount(ctx context.Context, userUID string) (*models.CreditAccount, error) {
	const op = "storage.GetCreditAccount"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, balance, plan_id, last_reset_at, next_reset_at, created_at, updated_at
			  FROM user_credits
			  WHERE user_uid = $1`
	var acc models.CreditAccount
	row := s.DB.QueryRowContext(ctx, query, userUID)
	if err := row.Scan(&acc.UserUID, &acc.Balance, &acc.PlanID, &acc.LastResetAt,
		&acc.NextResetAt, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrAccountNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &acc, nil
}

// CreateCreditAccountIfAbsent создаёт кредитный счёт, если его ещё нет,
// и возвращает актуальную запись. Существующая запись не перезаписывается:
// повторный вызов безопасен и при гонке двух создателей выигрывает первый.
func (s *Storage) CreateCreditAccountIfAbsent(ctx context.Context, userUID string, balance int,
	planID string, resetAt, nextResetAt time.Time) (*models.CreditAccount, error) {
	const op = "storage.CreateCreditAccountIfAbsent"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_credits (user_uid, balance, plan_id, last_reset_at, next_reset_at)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_uid) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, userUID, balance, planID, resetAt, nextResetAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetCreditAccount(ctx, userUID)
}

// CompareAndSetBalance условно записывает новый баланс: запись происходит,
// только если текущий баланс в базе всё ещё равен expected. Возвращает false,
// если условная запись проиграла гонку. Это единственный примитив,
// защищающий от потерянных обновлений при конкурентном списании.
func (s *Storage) CompareAndSetBalance(ctx context.Context, userUID string, expected, newBalance int) (bool, error) {
	const op = "storage.CompareAndSetBalance"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_credits
			  SET balance = $3, updated_at = NOW()
			  WHERE user_uid = $1 AND balance = $2`
	result, err := s.DB.ExecContext(ctx, query, userUID, expected, newBalance)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected == 1, nil
}

// SetPlanAndAllowance безусловно перезаписывает план, баланс и границы
// расчётного периода. Используется для продлений и смены тарифа,
// где последняя запись побеждает: источник — авторитетный поток
// биллинговых событий.
func (s *Storage) SetPlanAndAllowance(ctx context.Context, userUID, planID string, newBalance int,
	resetAt, nextResetAt time.Time) error {
	const op = "storage.SetPlanAndAllowance"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_credits
			  SET plan_id = $2, balance = $3, last_reset_at = $4, next_reset_at = $5, updated_at = NOW()
			  WHERE user_uid = $1`
	result, err := s.DB.ExecContext(ctx, query, userUID, planID, newBalance, resetAt, nextResetAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}

// UpdatePlan меняет план без изменения баланса. Используется при
// отложенном даунгрейде, когда начисление кредитов не требуется.
func (s *Storage) UpdatePlan(ctx context.Context, userUID, planID string) error {
	const op = "storage.UpdatePlan"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_credits
			  SET plan_id = $2, updated_at = NOW()
			  WHERE user_uid = $1`
	result, err := s.DB.ExecContext(ctx, query, userUID, planID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrAccountNotFound)
	}
	return nil
}
