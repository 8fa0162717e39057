package auth

import "errors"

var (
	// ErrNotAuthenticated — токена нет или его не удалось обновить.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoRefreshToken — нечем обновлять токен, нужна повторная авторизация.
	ErrNoRefreshToken = errors.New("no refresh token")
)
