package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vibeboost/backend/internal/models"
)

// UpsertSubscription вставляет или обновляет запись подписки пользователя.
// Конфликт разрешается по user_uid: у пользователя одна подписка.
func (s *Storage) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpsertSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_subscriptions (user_uid, email, stripe_customer_id, stripe_subscription_id,
			      plan_id, status, current_period_start, current_period_end, cancel_at_period_end)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (user_uid) DO UPDATE
			  SET email = EXCLUDED.email,
			      stripe_customer_id = EXCLUDED.stripe_customer_id,
			      stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			      plan_id = EXCLUDED.plan_id,
			      status = EXCLUDED.status,
			      current_period_start = EXCLUDED.current_period_start,
			      current_period_end = EXCLUDED.current_period_end,
			      cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			      updated_at = NOW()`
	_, err := s.DB.ExecContext(ctx, query,
		sub.UserUID, sub.Email, sub.StripeCustomerID, sub.StripeSubscriptionID, sub.PlanID,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetSubscriptionByExternalID возвращает подписку по внешнему идентификатору
// платёжного провайдера.
func (s *Storage) GetSubscriptionByExternalID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByExternalID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, email, stripe_customer_id, stripe_subscription_id, plan_id, status,
			      current_period_start, current_period_end, cancel_at_period_end,
			      COALESCE(last_applied_invoice_id, '')
			  FROM user_subscriptions
			  WHERE stripe_subscription_id = $1`
	return s.scanSubscription(s.DB.QueryRowContext(ctx, query, stripeSubscriptionID), op)
}

// GetSubscriptionByUserUID возвращает подписку пользователя.
func (s *Storage) GetSubscriptionByUserUID(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByUserUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_uid, email, stripe_customer_id, stripe_subscription_id, plan_id, status,
			      current_period_start, current_period_end, cancel_at_period_end,
			      COALESCE(last_applied_invoice_id, '')
			  FROM user_subscriptions
			  WHERE user_uid = $1`
	return s.scanSubscription(s.DB.QueryRowContext(ctx, query, userUID), op)
}

func (s *Storage) scanSubscription(row *sql.Row, op string) (*models.Subscription, error) {
	var sub models.Subscription
	var periodStart, periodEnd sql.NullTime
	if err := row.Scan(&sub.UserUID, &sub.Email, &sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.PlanID, &sub.Status, &periodStart, &periodEnd, &sub.CancelAtPeriodEnd,
		&sub.LastAppliedInvoiceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if periodStart.Valid {
		sub.CurrentPeriodStart = periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = periodEnd.Time
	}
	return &sub, nil
}

// UpdateSubscriptionStatus обновляет статус подписки по внешнему идентификатору.
func (s *Storage) UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) error {
	const op = "storage.UpdateSubscriptionStatus"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET status = $2, updated_at = NOW()
			  WHERE stripe_subscription_id = $1`
	_, err := s.DB.ExecContext(ctx, query, stripeSubscriptionID, status)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscriptionFromEvent обновляет статус, границы периода и флаг отмены
// по данным события провайдера.
func (s *Storage) UpdateSubscriptionFromEvent(ctx context.Context, stripeSubscriptionID, status string,
	periodStart, periodEnd sql.NullTime, cancelAtPeriodEnd bool) error {
	const op = "storage.UpdateSubscriptionFromEvent"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET status = $2,
			      current_period_start = COALESCE($3, current_period_start),
			      current_period_end = COALESCE($4, current_period_end),
			      cancel_at_period_end = $5,
			      updated_at = NOW()
			  WHERE stripe_subscription_id = $1`
	_, err := s.DB.ExecContext(ctx, query, stripeSubscriptionID, status, periodStart, periodEnd, cancelAtPeriodEnd)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// SetCancelAtPeriodEnd помечает подписку на отмену в конце оплаченного периода.
func (s *Storage) SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, flag bool) error {
	const op = "storage.SetCancelAtPeriodEnd"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET cancel_at_period_end = $2, updated_at = NOW()
			  WHERE stripe_subscription_id = $1`
	_, err := s.DB.ExecContext(ctx, query, stripeSubscriptionID, flag)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MarkInvoiceApplied условно фиксирует применённый инвойс подписки.
// Возвращает true, если инвойс зафиксирован этим вызовом, и false, если
// он уже был применён ранее — повторная доставка webhook-события не должна
// начислять кредиты второй раз.
func (s *Storage) MarkInvoiceApplied(ctx context.Context, stripeSubscriptionID, invoiceID string) (bool, error) {
	const op = "storage.MarkInvoiceApplied"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET last_applied_invoice_id = $2, updated_at = NOW()
			  WHERE stripe_subscription_id = $1
			    AND (last_applied_invoice_id IS NULL OR last_applied_invoice_id <> $2)`
	result, err := s.DB.ExecContext(ctx, query, stripeSubscriptionID, invoiceID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected == 1, nil
}
