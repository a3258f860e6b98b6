// Package models содержит доменные структуры, описывающие кредитный счёт
// пользователя, подписку и вспомогательные типы для работы с данными
// из внешних источников (например, JSON-запросы).
package models

import "time"

// CreditAccount представляет кредитный счёт пользователя.
// Одна запись на пользователя; баланс никогда не опускается ниже нуля,
// все изменения проходят через бизнес-логику кредитного сервиса.
type CreditAccount struct {
	UserUID     string    // Уникальный идентификатор пользователя (из провайдера аутентификации)
	Balance     int       // Текущий баланс в кредитах, >= 0
	PlanID      string    // Идентификатор тарифного плана
	LastResetAt time.Time // Начало текущего расчётного периода
	NextResetAt time.Time // Начало следующего расчётного периода
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
