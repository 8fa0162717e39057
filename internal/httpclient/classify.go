package httpclient

import (
	"errors"
	"net/http"
	"strings"
)

// invalidTokenError — значение поля "error" для просроченного/невалидного токена.
const invalidTokenError = "invalid_token"

// criticalMarkers — подстроки error_description, означающие риск для аккаунта.
var criticalMarkers = []string{
	"spam",
	"banned",
	"suspended",
	"abuse",
	"violation",
}

// AsAPIError извлекает *APIError из цепочки ошибок.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsExpiredToken — 401 и (error == "invalid_token" или описание содержит "expired").
func IsExpiredToken(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Status != http.StatusUnauthorized {
		return false
	}
	if apiErr.ErrorName == invalidTokenError {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.ErrorDescription), "expired")
}

// IsCritical — описание ошибки сигнализирует спам, бан, блокировку или нарушение.
// Воркер, получивший такую ошибку, останавливается немедленно.
func IsCritical(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	desc := strings.ToLower(apiErr.ErrorDescription)
	if desc == "" {
		return false
	}
	for _, marker := range criticalMarkers {
		if strings.Contains(desc, marker) {
			return true
		}
	}
	return false
}

// IsNonRetryable — любой 4xx, кроме 429: отказ для конкретного элемента.
func IsNonRetryable(err error) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
}

// HasStatus проверяет, что ошибка — APIError с одним из статусов.
func HasStatus(err error, statuses ...int) bool {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return false
	}
	for _, s := range statuses {
		if apiErr.Status == s {
			return true
		}
	}
	return false
}
