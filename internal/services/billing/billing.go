// Package billing переводит события платёжного провайдера в операции
// кредитного сервиса. Провайдер доставляет события как минимум один раз,
// возможно с повторами и не по порядку, поэтому каждая операция здесь
// либо идемпотентна по построению, либо защищена маркером применённого
// инвойса.
package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/plan"
	"github.com/vibeboost/backend/internal/storage/repository"
)

// ErrUnresolvedSubscription событие ссылается на подписку, для которой
// не известен пользователь. Повтор не поможет: привязка либо не создавалась,
// либо потеряна. Событие логируется и отбрасывается, обработка остальных
// событий продолжается.
var ErrUnresolvedSubscription = errors.New("subscription has no known user mapping")

// Ledger определяет операции кредитного сервиса, нужные адаптеру.
type Ledger interface {
	EnsureAccount(ctx context.Context, userUID string) (*models.CreditAccount, error)
	Renew(ctx context.Context, userUID, planID string, allowance int) (int, error)
	SetPlan(ctx context.Context, userUID, planID string) error
}

// SubscriptionRepository определяет методы хранилища подписок.
type SubscriptionRepository interface {
	UpsertSubscription(ctx context.Context, sub models.Subscription) error
	GetSubscriptionByExternalID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, stripeSubscriptionID, status string) error
	UpdateSubscriptionFromEvent(ctx context.Context, stripeSubscriptionID, status string, periodStart, periodEnd sql.NullTime, cancelAtPeriodEnd bool) error
	SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, flag bool) error
	MarkInvoiceApplied(ctx context.Context, stripeSubscriptionID, invoiceID string) (bool, error)
}

// Notifier публикует billing-уведомления в очередь. Публикация best-effort:
// её сбой не откатывает изменение счёта.
type Notifier interface {
	PublishBillingEvent(notification models.BillingNotification) error
}

// BillingService реализует обработку событий платёжного провайдера.
type BillingService struct {
	ledger   Ledger
	subs     SubscriptionRepository
	notifier Notifier
	log      *slog.Logger
}

// NewBillingService создает новый экземпляр BillingService.
// notifier может быть nil, тогда уведомления не публикуются.
func NewBillingService(ledger Ledger, subs SubscriptionRepository, notifier Notifier, log *slog.Logger) *BillingService {
	return &BillingService{
		ledger:   ledger,
		subs:     subs,
		notifier: notifier,
		log:      log,
	}
}

// HandleCheckoutCompleted обрабатывает завершение checkout-сессии:
// сохраняет привязку внешней подписки к пользователю и выполняет первое
// начисление. Идентификаторы пользователя и плана приходят в metadata
// сессии — провайдер возвращает их ровно в том виде, в котором они были
// переданы при создании сессии.
func (s *BillingService) HandleCheckoutCompleted(ctx context.Context, userUID, planID, email,
	customerID, subscriptionID string, periodStart, periodEnd time.Time) error {
	const op = "billing.HandleCheckoutCompleted"
	log := s.log.With(slog.String("op", op), slog.String("subscription_id", subscriptionID))

	if userUID == "" {
		log.Warn("checkout session without user metadata, dropping")
		return nil
	}
	p, err := plan.Get(planID)
	if err != nil {
		log.Warn("checkout session with unknown plan, dropping", slog.String("plan", planID))
		return nil
	}

	sub := models.Subscription{
		UserUID:              userUID,
		Email:                email,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
		PlanID:               planID,
		Status:               models.SubscriptionStatusActive,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}
	if err := s.subs.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.ledger.Renew(ctx, userUID, planID, p.MonthlyCredits); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("checkout completed, first allowance granted",
		slog.String("user_uid", userUID), slog.String("plan", planID))

	s.notify(models.BillingNotification{
		Kind:       models.BillingNotificationRenewed,
		UserUID:    userUID,
		Email:      email,
		PlanID:     planID,
		OccurredAt: time.Now(),
	})
	return nil
}

// HandleSubscriptionCreated сохраняет привязку подписки без начисления
// кредитов: начисление происходит по payment-succeeded, когда оплата
// подтверждена.
func (s *BillingService) HandleSubscriptionCreated(ctx context.Context, userUID, planID,
	customerID, subscriptionID string, periodStart, periodEnd time.Time) error {
	const op = "billing.HandleSubscriptionCreated"
	log := s.log.With(slog.String("op", op), slog.String("subscription_id", subscriptionID))

	if userUID == "" {
		log.Warn("subscription event without user metadata, dropping")
		return nil
	}
	if !plan.IsValid(planID) {
		planID = plan.Basic
	}

	sub := models.Subscription{
		UserUID:              userUID,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
		PlanID:               planID,
		Status:               models.SubscriptionStatusIncomplete,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
	}
	if err := s.subs.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.ledger.EnsureAccount(ctx, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandleSubscriptionUpdated переносит изменившиеся статус, границы периода
// и флаг отмены в хранилище. Кредиты не трогает.
func (s *BillingService) HandleSubscriptionUpdated(ctx context.Context, subscriptionID, status string,
	periodStart, periodEnd time.Time, cancelAtPeriodEnd bool) error {
	const op = "billing.HandleSubscriptionUpdated"

	var start, end sql.NullTime
	if !periodStart.IsZero() {
		start = sql.NullTime{Time: periodStart, Valid: true}
	}
	if !periodEnd.IsZero() {
		end = sql.NullTime{Time: periodEnd, Valid: true}
	}
	if err := s.subs.UpdateSubscriptionFromEvent(ctx, subscriptionID, status, start, end, cancelAtPeriodEnd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HandlePaymentSucceeded начисляет месячное количество кредитов плана
// по успешной оплате. Повтор того же инвойса не начисляет кредиты второй
// раз. Маркер применённого инвойса фиксируется только после успешного
// начисления: если начисление сорвалось, маркер остаётся пустым и повтор
// доставки применит инвойс заново. Renew идемпотентен внутри периода,
// поэтому гонка двух доставок одного инвойса сходится к одному начислению.
// Событие без известной привязки подписки логируется и отбрасывается.
func (s *BillingService) HandlePaymentSucceeded(ctx context.Context, subscriptionID, invoiceID string) error {
	const op = "billing.HandlePaymentSucceeded"
	log := s.log.With(slog.String("op", op), slog.String("subscription_id", subscriptionID))

	sub, err := s.resolve(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrUnresolvedSubscription) {
			log.Warn("payment for unknown subscription, dropping", sl.Err(err))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if invoiceID != "" && sub.LastAppliedInvoiceID == invoiceID {
		log.Info("invoice already applied, skipping renewal", slog.String("invoice_id", invoiceID))
		return nil
	}

	allowance := plan.Allowance(sub.PlanID)
	if _, err := s.ledger.Renew(ctx, sub.UserUID, sub.PlanID, allowance); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.subs.UpdateSubscriptionStatus(ctx, subscriptionID, models.SubscriptionStatusActive); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if invoiceID != "" {
		if _, err := s.subs.MarkInvoiceApplied(ctx, subscriptionID, invoiceID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	log.Info("payment succeeded, allowance renewed",
		slog.String("user_uid", sub.UserUID), slog.String("plan", sub.PlanID), slog.Int("allowance", allowance))

	s.notify(models.BillingNotification{
		Kind:       models.BillingNotificationRenewed,
		UserUID:    sub.UserUID,
		Email:      sub.Email,
		PlanID:     sub.PlanID,
		OccurredAt: time.Now(),
	})
	return nil
}

// HandleSubscriptionCanceled обрабатывает отмену подписки. При немедленной
// отмене пользователь возвращается на бесплатный план с его начислением;
// при отложенной меняется только флаг — даунгрейд произойдёт, когда
// провайдер подтвердит завершение подписки.
func (s *BillingService) HandleSubscriptionCanceled(ctx context.Context, subscriptionID string, immediate bool) error {
	const op = "billing.HandleSubscriptionCanceled"
	log := s.log.With(slog.String("op", op), slog.String("subscription_id", subscriptionID))

	if !immediate {
		if err := s.subs.SetCancelAtPeriodEnd(ctx, subscriptionID, true); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	sub, err := s.resolve(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, ErrUnresolvedSubscription) {
			log.Warn("cancellation for unknown subscription, dropping", sl.Err(err))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.ledger.Renew(ctx, sub.UserUID, plan.Free, plan.Allowance(plan.Free)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.subs.UpdateSubscriptionStatus(ctx, subscriptionID, models.SubscriptionStatusCanceled); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("subscription canceled, downgraded to free", slog.String("user_uid", sub.UserUID))
	return nil
}

// HandlePaymentFailed помечает подписку как просроченную. Уже начисленные
// кредиты не отзываются: действует льготный период до решения провайдера.
func (s *BillingService) HandlePaymentFailed(ctx context.Context, subscriptionID string) error {
	const op = "billing.HandlePaymentFailed"
	log := s.log.With(slog.String("op", op), slog.String("subscription_id", subscriptionID))

	if err := s.subs.UpdateSubscriptionStatus(ctx, subscriptionID, models.SubscriptionStatusPastDue); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Warn("payment failed, subscription marked past due")

	if sub, err := s.resolve(ctx, subscriptionID); err == nil {
		s.notify(models.BillingNotification{
			Kind:       models.BillingNotificationPaymentFailed,
			UserUID:    sub.UserUID,
			Email:      sub.Email,
			PlanID:     sub.PlanID,
			OccurredAt: time.Now(),
		})
	}
	return nil
}

func (s *BillingService) resolve(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	sub, err := s.subs.GetSubscriptionByExternalID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrUnresolvedSubscription
		}
		return nil, err
	}
	return sub, nil
}

func (s *BillingService) notify(notification models.BillingNotification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishBillingEvent(notification); err != nil {
		s.log.Warn("failed to publish billing notification", sl.Err(err))
	}
}
