// Package subscription содержит пользовательские операции над подпиской:
// статус, создание checkout-сессии, отмена и апгрейд плана.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vibeboost/backend/internal/lib/sl"
	"github.com/vibeboost/backend/internal/models"
	"github.com/vibeboost/backend/internal/plan"
	"github.com/vibeboost/backend/internal/storage/repository"
)

var (
	// ErrPlanNotSelfService план нельзя купить самостоятельно.
	ErrPlanNotSelfService = errors.New("plan is not available for self-service checkout")
	// ErrNoActiveSubscription у пользователя нет активной подписки.
	ErrNoActiveSubscription = errors.New("no active subscription")
	// ErrNotPendingCancel подписка не ожидает отмены, снимать нечего.
	ErrNotPendingCancel = errors.New("subscription is not scheduled for cancellation")
)

// statusCacheTTL время жизни кэша статуса. Короткое: после вебхука
// провайдера статус должен обновиться быстро.
const statusCacheTTL = 30 * time.Second

// CreditLedger определяет операции кредитного сервиса, нужные подписке.
type CreditLedger interface {
	EnsureAccount(ctx context.Context, userUID string) (*models.CreditAccount, error)
	MaybeResetFreeAllowance(ctx context.Context, userUID string) (int, bool, error)
	GetBalance(ctx context.Context, userUID string) int
	Renew(ctx context.Context, userUID, planID string, allowance int) (int, error)
}

// SubscriptionRepository определяет методы хранилища подписок.
type SubscriptionRepository interface {
	GetSubscriptionByUserUID(ctx context.Context, userUID string) (*models.Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, flag bool) error
}

// PaymentProvider определяет операции платёжного провайдера.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, userUID, email, planID string) (string, error)
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error
	ResumeSubscription(ctx context.Context, subscriptionID string) error
	ChangeSubscriptionPlan(ctx context.Context, subscriptionID, planID string) error
	CreateBillingPortalSession(ctx context.Context, customerID string) (string, error)
}

// Cache интерфейс кэша для статуса подписки.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// SubscriptionService реализует пользовательские операции над подпиской.
type SubscriptionService struct {
	ledger   CreditLedger
	subs     SubscriptionRepository
	provider PaymentProvider
	cache    Cache
	log      *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(ledger CreditLedger, subs SubscriptionRepository,
	provider PaymentProvider, cache Cache, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		ledger:   ledger,
		subs:     subs,
		provider: provider,
		cache:    cache,
		log:      log,
	}
}

// Status возвращает текущий план, баланс кредитов и состояние подписки.
// Перед ответом лениво создаёт счёт и при необходимости сбрасывает
// начисление бесплатного плана.
func (s *SubscriptionService) Status(ctx context.Context, userUID string) (*models.SubscriptionStatus, error) {
	const op = "subscription.Status"

	cacheKey := "substatus:" + userUID
	var cached models.SubscriptionStatus
	if found, err := s.cache.Get(cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	// Сброс бесплатного начисления выполняется до чтения счёта: ответ
	// и кэш должны отражать баланс и границы периода уже после сброса.
	if _, _, err := s.ledger.MaybeResetFreeAllowance(ctx, userUID); err != nil {
		s.log.Warn("failed to reset free allowance", slog.String("user_uid", userUID), sl.Err(err))
	}
	acc, err := s.ledger.EnsureAccount(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lastReset := acc.LastResetAt
	nextReset := acc.NextResetAt
	status := &models.SubscriptionStatus{
		Credits: models.CreditsInfo{
			Current:   acc.Balance,
			LastReset: &lastReset,
			NextReset: &nextReset,
		},
	}

	planID := acc.PlanID
	sub, err := s.subs.GetSubscriptionByUserUID(ctx, userUID)
	switch {
	case err == nil:
		status.Subscription = sub
		planID = sub.PlanID
	case errors.Is(err, repository.ErrSubscriptionNotFound):
		// Пользователь на бесплатном плане, подписки нет.
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if p, err := plan.Get(planID); err == nil {
		status.Plan = models.PlanInfo{
			ID:             p.ID,
			Name:           p.Name,
			PriceCents:     p.PriceCents,
			MonthlyCredits: p.MonthlyCredits,
			SelfService:    p.SelfService,
		}
	}

	if err := s.cache.Set(cacheKey, status, statusCacheTTL); err != nil {
		s.log.Warn("failed to cache subscription status", sl.Err(err))
	}
	return status, nil
}

// CreateCheckout создаёт checkout-сессию провайдера для покупки плана
// и возвращает URL для редиректа. Планы без самостоятельной покупки
// отклоняются до обращения к провайдеру.
func (s *SubscriptionService) CreateCheckout(ctx context.Context, userUID, email, planID string) (string, error) {
	const op = "subscription.CreateCheckout"

	p, err := plan.Get(planID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !p.SelfService {
		return "", fmt.Errorf("%s: %w", op, ErrPlanNotSelfService)
	}

	url, err := s.provider.CreateCheckoutSession(ctx, userUID, email, planID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("checkout session created",
		slog.String("user_uid", userUID), slog.String("plan", planID))
	return url, nil
}

// Cancel отменяет подписку пользователя. При atPeriodEnd подписка
// доживает оплаченный период; иначе отменяется немедленно. Изменение
// счёта происходит по вебхуку провайдера, не здесь.
func (s *SubscriptionService) Cancel(ctx context.Context, userUID string, atPeriodEnd bool) error {
	const op = "subscription.Cancel"

	sub, err := s.activeSubscription(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.provider.CancelSubscription(ctx, sub.StripeSubscriptionID, atPeriodEnd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateStatus(userUID)
	s.log.Info("subscription cancellation requested",
		slog.String("user_uid", userUID), slog.Bool("at_period_end", atPeriodEnd))
	return nil
}

// Reactivate снимает отложенную отмену подписки. Работает только пока
// подписка доживает оплаченный период с выставленным флагом отмены;
// подписку, уже завершённую провайдером, восстановить нельзя.
func (s *SubscriptionService) Reactivate(ctx context.Context, userUID string) error {
	const op = "subscription.Reactivate"

	sub, err := s.activeSubscription(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !sub.CancelAtPeriodEnd {
		return fmt.Errorf("%s: %w", op, ErrNotPendingCancel)
	}
	if err := s.provider.ResumeSubscription(ctx, sub.StripeSubscriptionID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.subs.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateStatus(userUID)
	s.log.Info("subscription reactivated", slog.String("user_uid", userUID))
	return nil
}

// BillingPortalURL возвращает URL биллинг-портала провайдера, где
// пользователь управляет способами оплаты и инвойсами.
func (s *SubscriptionService) BillingPortalURL(ctx context.Context, userUID string) (string, error) {
	const op = "subscription.BillingPortalURL"

	sub, err := s.subs.GetSubscriptionByUserUID(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return "", fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if sub.StripeCustomerID == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoActiveSubscription)
	}

	url, err := s.provider.CreateBillingPortalSession(ctx, sub.StripeCustomerID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return url, nil
}

// Upgrade переводит подписку на более дорогой план. Переход проверяется
// по порядку тарифов, после чего провайдер меняет позицию подписки,
// а кредиты немедленно устанавливаются в начисление нового плана.
func (s *SubscriptionService) Upgrade(ctx context.Context, userUID, newPlanID string) error {
	const op = "subscription.Upgrade"

	sub, err := s.activeSubscription(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := plan.ValidateUpgrade(sub.PlanID, newPlanID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.provider.ChangeSubscriptionPlan(ctx, sub.StripeSubscriptionID, newPlanID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.ledger.Renew(ctx, userUID, newPlanID, plan.Allowance(newPlanID)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateStatus(userUID)
	s.log.Info("subscription upgraded",
		slog.String("user_uid", userUID), slog.String("from", sub.PlanID), slog.String("to", newPlanID))
	return nil
}

// Plans возвращает каталог тарифных планов для отображения.
func (s *SubscriptionService) Plans() []models.PlanInfo {
	catalog := plan.List()
	result := make([]models.PlanInfo, 0, len(catalog))
	for _, p := range catalog {
		result = append(result, models.PlanInfo{
			ID:             p.ID,
			Name:           p.Name,
			PriceCents:     p.PriceCents,
			MonthlyCredits: p.MonthlyCredits,
			SelfService:    p.SelfService,
		})
	}
	return result
}

func (s *SubscriptionService) activeSubscription(ctx context.Context, userUID string) (*models.Subscription, error) {
	sub, err := s.subs.GetSubscriptionByUserUID(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil, ErrNoActiveSubscription
	}
	return sub, nil
}

func (s *SubscriptionService) invalidateStatus(userUID string) {
	if err := s.cache.Invalidate("substatus:" + userUID); err != nil {
		s.log.Warn("failed to invalidate status cache", sl.Err(err))
	}
}
