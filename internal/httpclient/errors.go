package httpclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrRateLimited — rate-limit не снят за отведённое число повторов
// при транспортном статусе < 400.
var ErrRateLimited = errors.New("rate limited")

// maxErrorLen — предел длины текста ошибки, сохраняемого в очередь.
const maxErrorLen = 500

// APIError — ответ внешнего API со статусом >= 400.
//
// Тело разбирается один раз; поля пустые, если тело не JSON
// или не содержит соответствующих ключей.
type APIError struct {
	Status           int
	ErrorName        string // поле "error"
	ErrorCode        string // поле "error_code" (число или строка)
	ErrorDescription string // поле "error_description"
	Body             string
}

// errorPayload — структура тела ошибки внешнего API.
type errorPayload struct {
	Error            string          `json:"error"`
	ErrorCode        json.RawMessage `json:"error_code"`
	ErrorDescription string          `json:"error_description"`
}

// NewAPIError строит APIError из статуса и тела ответа.
func NewAPIError(status int, body []byte) *APIError {
	e := &APIError{
		Status: status,
		Body:   string(body),
	}

	var p errorPayload
	if err := json.Unmarshal(body, &p); err == nil {
		e.ErrorName = p.Error
		e.ErrorDescription = p.ErrorDescription
		e.ErrorCode = decodeErrorCode(p.ErrorCode)
	}

	return e
}

// decodeErrorCode приводит error_code (int или string) к строке.
func decodeErrorCode(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return string(raw)
}

// Error форматирует ошибку: "HTTP 400: invalid_request code=4 описание".
func (e *APIError) Error() string {
	var details []string
	if e.ErrorName != "" {
		details = append(details, e.ErrorName)
	}
	if e.ErrorCode != "" {
		details = append(details, "code="+e.ErrorCode)
	}
	if e.ErrorDescription != "" {
		details = append(details, e.ErrorDescription)
	}
	if len(details) == 0 && e.Body != "" {
		details = append(details, Truncate(e.Body, 200))
	}

	msg := fmt.Sprintf("HTTP %d", e.Status)
	if len(details) > 0 {
		msg += ": " + strings.Join(details, " ")
	}
	return msg
}

// Code возвращает error_code как число, если он числовой.
func (e *APIError) Code() (int, bool) {
	n, err := strconv.Atoi(e.ErrorCode)
	if err != nil {
		return 0, false
	}
	return n, true
}

// StatusText возвращает текстовое описание статуса.
func (e *APIError) StatusText() string {
	return http.StatusText(e.Status)
}

// Truncate обрезает строку до n байт, не разрывая UTF-8 символ.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ErrorText возвращает текст ошибки, обрезанный для хранения в БД.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	return Truncate(err.Error(), maxErrorLen)
}
