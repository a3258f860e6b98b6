// Package jwt реализует проверку токенов Supabase Auth.
//
// Сервис не выпускает собственные токены: пользователи аутентифицируются
// в Supabase, а сюда приходит уже подписанный HS256 access-токен.
// Проверяется подпись, срок действия и наличие subject — идентификатора
// пользователя, которым ключуются все данные сервиса.
package jwt

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken токен не прошёл проверку подписи или обязательных полей.
var ErrInvalidToken = errors.New("invalid token")

// SupabaseClaims описывает данные access-токена Supabase.
type SupabaseClaims struct {
	Email                string `json:"email"`
	Role                 string `json:"role"`
	jwt.RegisteredClaims        // Встроенные стандартные claims JWT (Subject, ExpiresAt и пр.)
}

// Verifier проверяет access-токены Supabase.
type Verifier struct {
	secretKey string
}

// NewVerifier создаёт новый экземпляр Verifier.
func NewVerifier(secretKey string) *Verifier {
	return &Verifier{secretKey: secretKey}
}

// ParseToken проверяет подпись и валидность токена и возвращает его claims.
// Принимаются только токены, подписанные HS256: заголовок alg не может
// выбрать другой алгоритм.
func (v *Verifier) ParseToken(tokenStr string) (*SupabaseClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &SupabaseClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(v.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*SupabaseClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%s: %w: missing subject", op, ErrInvalidToken)
	}
	return claims, nil
}
