// Package paymentprovider содержит клиент платёжного провайдера Stripe.
// Идентификаторы пользователя и плана передаются в metadata checkout-сессии
// и подписки: провайдер возвращает их в вебхуках без изменений, что
// избавляет от отдельной таблицы соответствий.
package paymentprovider

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/vibeboost/backend/internal/plan"
)

// ErrNoPriceForPlan у продукта плана нет активной месячной цены.
var ErrNoPriceForPlan = errors.New("no active price for plan")

// Client клиент Stripe API.
type Client struct {
	successURL      string
	cancelURL       string
	portalReturnURL string
}

// NewClient создаёт новый клиент Stripe. Секретный ключ устанавливается
// глобально для пакета stripe, как того требует SDK.
func NewClient(secretKey, successURL, cancelURL, portalReturnURL string) *Client {
	stripe.Key = secretKey
	return &Client{
		successURL:      successURL,
		cancelURL:       cancelURL,
		portalReturnURL: portalReturnURL,
	}
}

// CreateCheckoutSession создаёт подписочную checkout-сессию для плана
// и возвращает URL оплаты.
func (c *Client) CreateCheckoutSession(ctx context.Context, userUID, email, planID string) (string, error) {
	const op = "paymentprovider.CreateCheckoutSession"

	priceID, err := c.monthlyPriceID(ctx, planID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(email),
		SuccessURL:    stripe.String(c.successURL),
		CancelURL:     stripe.String(c.cancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_uid": userUID,
				"plan_id":  planID,
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_uid", userUID)
	params.AddMetadata("plan_id", planID)

	sess, err := session.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sess.URL, nil
}

// CancelSubscription отменяет подписку. При atPeriodEnd подписка остаётся
// активной до конца оплаченного периода, иначе завершается немедленно.
func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	const op = "paymentprovider.CancelSubscription"

	if atPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		if _, err := subscription.Update(subscriptionID, params); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := subscription.Cancel(subscriptionID, params); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ResumeSubscription снимает отложенную отмену: подписка продолжит
// продлеваться после конца текущего периода.
func (c *Client) ResumeSubscription(ctx context.Context, subscriptionID string) error {
	const op = "paymentprovider.ResumeSubscription"

	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(false),
	}
	params.Context = ctx
	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CreateBillingPortalSession создаёт сессию биллинг-портала Stripe,
// где пользователь сам управляет способами оплаты и инвойсами.
func (c *Client) CreateBillingPortalSession(ctx context.Context, customerID string) (string, error) {
	const op = "paymentprovider.CreateBillingPortalSession"

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.portalReturnURL),
	}
	params.Context = ctx
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sess.URL, nil
}

// ChangeSubscriptionPlan заменяет позицию подписки на цену нового плана.
// Пропорциональный перерасчёт выполняет провайдер.
func (c *Client) ChangeSubscriptionPlan(ctx context.Context, subscriptionID, planID string) error {
	const op = "paymentprovider.ChangeSubscriptionPlan"

	priceID, err := c.monthlyPriceID(ctx, planID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	sub, err := subscription.Get(subscriptionID, getParams)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(sub.Items.Data) == 0 {
		return fmt.Errorf("%s: subscription has no items", op)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(sub.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Context = ctx
	params.AddMetadata("plan_id", planID)
	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// monthlyPriceID возвращает идентификатор активной цены продукта плана.
func (c *Client) monthlyPriceID(ctx context.Context, planID string) (string, error) {
	p, err := plan.Get(planID)
	if err != nil {
		return "", err
	}
	if p.StripeProductID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoPriceForPlan, planID)
	}

	params := &stripe.PriceListParams{
		Product: stripe.String(p.StripeProductID),
		Active:  stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := price.List(params)
	for iter.Next() {
		return iter.Price().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w: %s", ErrNoPriceForPlan, planID)
}
