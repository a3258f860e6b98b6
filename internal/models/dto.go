package models

import "time"

// DummyCheckoutRequest используется для приёма данных из JSON-запроса
// на создание checkout-сессии платёжного провайдера.
type DummyCheckoutRequest struct {
	PlanID string `json:"plan_id" validate:"required,alphanum"` // Идентификатор покупаемого плана
}

// DummyCancelRequest параметры отмены подписки.
// AtPeriodEnd по умолчанию true: отмена в конце оплаченного периода.
type DummyCancelRequest struct {
	AtPeriodEnd *bool `json:"at_period_end"`
}

// DummyUpgradeRequest параметры повышения тарифного плана.
type DummyUpgradeRequest struct {
	PlanID string `json:"plan_id" validate:"required,alphanum"`
}

// PlanInfo описывает тарифный план в ответах API.
type PlanInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PriceCents     int    `json:"price"`
	MonthlyCredits int    `json:"credits"`
	SelfService    bool   `json:"self_service"`
}

// CreditsInfo состояние кредитного счёта в ответах API.
type CreditsInfo struct {
	Current   int        `json:"current"`
	LastReset *time.Time `json:"last_reset,omitempty"`
	NextReset *time.Time `json:"next_reset,omitempty"`
}

// SubscriptionStatus сводное состояние подписки, плана и кредитов пользователя.
type SubscriptionStatus struct {
	Subscription *Subscription `json:"subscription"`
	Plan         PlanInfo      `json:"plan"`
	Credits      CreditsInfo   `json:"credits"`
}
