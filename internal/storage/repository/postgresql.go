// Package repository реализует хранилище данных на основе PostgreSQL
// для кредитных счетов и подписок пользователей. Предоставляет методы
// чтения, идемпотентной инициализации и условной записи баланса,
// а также работу с привязкой внешних подписок к пользователям.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	// ErrAccountNotFound кредитный счёт пользователя отсутствует.
	ErrAccountNotFound = errors.New("credit account not found")
	// ErrSubscriptionNotFound подписка с таким внешним идентификатором неизвестна.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Storage инкапсулирует соединение с базой данных PostgreSQL
// и реализует методы работы с кредитами и подписками.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL.
func New(storageConnectionString string) (*Storage, error) {
	const op = "storage.New"

	db, err := sql.Open("pgx", storageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{
		DB: db,
	}, nil
}

// CheckDatabaseReady проверяет готовность базы данных.
func CheckDatabaseReady(storage *Storage) error {
	var exists bool
	err := storage.DB.QueryRow(`SELECT EXISTS (
        SELECT FROM information_schema.tables
        WHERE table_name = 'user_credits'
    )`).Scan(&exists)
	if err != nil || !exists {
		return fmt.Errorf("required table user_credits missing or query error: %w", err)
	}
	return nil
}
