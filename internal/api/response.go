package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/shaiso/Deviart/internal/auth"
	"github.com/shaiso/Deviart/internal/control"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/template"
	"github.com/shaiso/Deviart/internal/worker"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — ответ с ошибкой: {success:false, error}.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code"`
}

// ActionResponse — ответ на управляющее действие: {success, message}.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// DataResponse — ответ на чтение.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — ответ со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Done отправляет успешный ответ на действие.
func Done(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, ActionResponse{Success: true, Message: message, Data: data})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError отправляет ошибку 500 с текстом ошибки.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	message := "internal server error"
	if err != nil {
		message = err.Error()
	}
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// HandleError преобразует ошибку сервиса в HTTP ответ.
// Возвращает false, если err == nil.
//
//	400 — воркер уже запущен / не запущен, предусловия, невалидный шаблон
//	401 — нет токена или авторизация не удалась
//	404 — неизвестная фича, запись не найдена
//	500 — всё остальное, с текстом ошибки
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, worker.ErrAlreadyRunning),
		errors.Is(err, worker.ErrNotRunning),
		errors.Is(err, worker.ErrPrecondition),
		errors.Is(err, template.ErrInvalidTemplate),
		errors.Is(err, control.ErrUnknownAction),
		errors.Is(err, errInvalidKey):
		BadRequest(w, err.Error())
	case errors.Is(err, worker.ErrNoToken),
		errors.Is(err, auth.ErrNotAuthenticated):
		Error(w, http.StatusUnauthorized, ErrCodeUnauthorized, err.Error())
	case errors.Is(err, worker.ErrUnknownFeature),
		errors.Is(err, repo.ErrNotFound):
		NotFound(w, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}

// decodeJSON разбирает тело запроса. Пустое тело допустимо.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
