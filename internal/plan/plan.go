// Package plan содержит статический каталог тарифных планов и правила
// переходов между ними. Каталог задаётся на этапе сборки и не меняется
// во время работы процесса.
package plan

import "errors"

// Идентификаторы планов. Закрытое перечисление: любые другие значения невалидны.
const (
	Free       = "free"
	Basic      = "basic"
	Pro        = "pro"
	Business   = "business"
	Enterprise = "enterprise"
)

var (
	// ErrUnknownPlan план отсутствует в каталоге.
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrInvalidPlanTransition переход нарушает порядок тарифов.
	ErrInvalidPlanTransition = errors.New("invalid plan transition")
)

// Plan описывает тарифный план: цена, месячное начисление кредитов
// и ссылка на продукт платёжного провайдера.
type Plan struct {
	ID              string
	Name            string
	PriceCents      int  // Цена за месяц в центах, 0 для free
	MonthlyCredits  int  // Начисление кредитов в начале периода, 0 для enterprise (индивидуально)
	StripeProductID string
	SelfService     bool // Доступен ли план через самостоятельный checkout
}

// catalog единый источник данных о планах.
// У enterprise нет числового начисления и самостоятельной покупки —
// он подключается вручную.
var catalog = map[string]Plan{
	Free:       {ID: Free, Name: "Free", PriceCents: 0, MonthlyCredits: 15, SelfService: false},
	Basic:      {ID: Basic, Name: "Basic", PriceCents: 1200, MonthlyCredits: 100, StripeProductID: "prod_T6KHyx8rT3FuZw", SelfService: true},
	Pro:        {ID: Pro, Name: "Pro", PriceCents: 3900, MonthlyCredits: 500, StripeProductID: "prod_T6KWg56uGCU5M8", SelfService: true},
	Business:   {ID: Business, Name: "Business", PriceCents: 8900, MonthlyCredits: 1500, StripeProductID: "prod_T6KXqIAYquAPt1", SelfService: true},
	Enterprise: {ID: Enterprise, Name: "Enterprise", SelfService: false},
}

// order фиксированный порядок тарифов для проверки апгрейда.
// Enterprise в порядок не входит: самостоятельного перехода на него нет.
var order = []string{Free, Basic, Pro, Business}

// Get возвращает план по идентификатору.
func Get(id string) (Plan, error) {
	p, ok := catalog[id]
	if !ok {
		return Plan{}, ErrUnknownPlan
	}
	return p, nil
}

// IsValid сообщает, входит ли идентификатор в закрытое перечисление планов.
func IsValid(id string) bool {
	_, ok := catalog[id]
	return ok
}

// Allowance возвращает месячное начисление кредитов для плана.
// Для неизвестных планов и enterprise возвращает 0.
func Allowance(id string) int {
	p, ok := catalog[id]
	if !ok {
		return 0
	}
	return p.MonthlyCredits
}

// List возвращает планы каталога в фиксированном порядке, enterprise последним.
func List() []Plan {
	result := make([]Plan, 0, len(catalog))
	for _, id := range order {
		result = append(result, catalog[id])
	}
	result = append(result, catalog[Enterprise])
	return result
}

func rank(id string) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

// ValidateUpgrade проверяет, что переход current -> next является апгрейдом:
// оба плана входят в порядок тарифов и next строго выше current.
// Даунгрейд, переход на тот же план и любой самостоятельный переход
// на enterprise отклоняются.
func ValidateUpgrade(current, next string) error {
	if !IsValid(current) || !IsValid(next) {
		return ErrUnknownPlan
	}
	currentRank, nextRank := rank(current), rank(next)
	if currentRank < 0 || nextRank < 0 {
		return ErrInvalidPlanTransition
	}
	if nextRank <= currentRank {
		return ErrInvalidPlanTransition
	}
	return nil
}
