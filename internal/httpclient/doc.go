// Package httpclient — HTTP-клиент внешнего API с retry и контролем частоты.
//
// # Retry
//
// Запрос повторяется, если:
//   - ответ rate-limited: статус 429 или JSON-тело {"error": "user_api_threshold"}
//     (даже при статусе 2xx)
//   - статус входит в RetryableStatuses (по умолчанию 400, 429, 503)
//   - транспортная ошибка (соединение, таймаут)
//
// Задержка: min(Retry-After, если числовой, иначе BaseDelay * 2^(attempt-1), MaxBackoff).
// Для сетевых ошибок Retry-After нет — только backoff. Максимум MaxRetries повторов
// (6 вызовов всего при значениях по умолчанию).
//
// # Рекомендуемая задержка
//
// Задержка последнего rate-limit сохраняется и возвращается RecommendedDelay();
// без недавнего rate-limit — DefaultDelay. Успешный вызов, не встретивший
// rate-limit, сбрасывает её.
// Вызывающий код ждёт RecommendedDelay() между запросами и на успешном пути.
//
// # Ошибки
//
// Ответ со статусом >= 400 (после исчерпания retry или без retry)
// возвращается как *APIError с разобранным телом: error, error_code,
// error_description. Классификация — IsExpiredToken, IsCritical, IsNonRetryable.
package httpclient
