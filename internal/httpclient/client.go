package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shaiso/Deviart/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxRetries   = 5
	DefaultBaseDelay    = 5 * time.Second
	DefaultMaxBackoff   = 60 * time.Second
	DefaultRequestDelay = 5 * time.Second

	// rateLimitErrorName — код rate-limit в JSON-теле ответа.
	rateLimitErrorName = "user_api_threshold"

	// maxBodySize — предел читаемого тела ответа.
	maxBodySize = 10 * 1024 * 1024
)

// DefaultRetryableStatuses — статусы, при которых запрос повторяется.
// 400 включён намеренно: внешнее API отдаёт через него часть временных ошибок.
var DefaultRetryableStatuses = []int{
	http.StatusBadRequest,
	http.StatusTooManyRequests,
	http.StatusServiceUnavailable,
}

// Doer выполняет HTTP-запрос. *http.Client удовлетворяет интерфейсу.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SleepFunc ждёт d или отмены ctx.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Config — конфигурация Client.
type Config struct {
	// Doer — транспорт (опционально; по умолчанию http.Client с Timeout).
	Doer Doer

	Timeout      time.Duration // таймаут одного запроса (default: 30s)
	MaxRetries   int           // максимум повторов (default: 5; отрицательное — 0)
	BaseDelay    time.Duration // база экспоненциального backoff (default: 5s)
	MaxBackoff   time.Duration // потолок задержки (default: 60s)
	DefaultDelay time.Duration // пауза между запросами без rate-limit (default: 5s)

	// RetryableStatuses — статусы для retry (default: 400, 429, 503).
	RetryableStatuses []int

	// DisableRetry отключает повторы: ни одного sleep внутри клиента.
	DisableRetry bool

	// RequestsPerSecond — потолок частоты запросов (0 — без лимитера).
	RequestsPerSecond float64

	// Sleep — функция ожидания (для тестов).
	Sleep SleepFunc

	Logger *slog.Logger
}

// Client — HTTP-клиент внешнего API с retry/backoff.
// Безопасен для конкурентного использования.
type Client struct {
	doer         Doer
	maxRetries   int
	baseDelay    time.Duration
	maxBackoff   time.Duration
	defaultDelay time.Duration
	retryable    map[int]bool
	retryEnabled bool
	limiter      *rate.Limiter
	sleep        SleepFunc
	logger       *slog.Logger

	mu             sync.Mutex
	lastRetryDelay time.Duration
}

// Response — прочитанный ответ.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON декодирует тело ответа в v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// New создаёт Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	doer := cfg.Doer
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = DefaultMaxBackoff
	}

	defaultDelay := cfg.DefaultDelay
	if defaultDelay <= 0 {
		defaultDelay = DefaultRequestDelay
	}

	statuses := cfg.RetryableStatuses
	if len(statuses) == 0 {
		statuses = DefaultRetryableStatuses
	}
	retryable := make(map[int]bool, len(statuses))
	for _, s := range statuses {
		retryable[s] = true
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		doer:         doer,
		maxRetries:   maxRetries,
		baseDelay:    baseDelay,
		maxBackoff:   maxBackoff,
		defaultDelay: defaultDelay,
		retryable:    retryable,
		retryEnabled: !cfg.DisableRetry,
		limiter:      limiter,
		sleep:        sleep,
		logger:       logger,
	}
}

// Get выполняет GET с query-параметрами.
func (c *Client) Get(ctx context.Context, rawURL string, params url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, params, nil)
}

// PostForm выполняет POST с form-urlencoded телом.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, nil, form)
}

// RecommendedDelay возвращает паузу перед следующим запросом:
// задержку последнего rate-limit или DefaultDelay.
func (c *Client) RecommendedDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRetryDelay > 0 {
		return c.lastRetryDelay
	}
	return c.defaultDelay
}

// ResetRetryDelay сбрасывает запомненную задержку rate-limit.
func (c *Client) ResetRetryDelay() {
	c.setLastRetryDelay(0)
}

func (c *Client) setLastRetryDelay(d time.Duration) {
	c.mu.Lock()
	c.lastRetryDelay = d
	c.mu.Unlock()
}

// do — цикл запроса с retry.
func (c *Client) do(ctx context.Context, method, rawURL string, params, form url.Values) (*Response, error) {
	attempt := 0
	rateLimitedThisCall := false

	for {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		c.logger.Debug("http request",
			"method", method,
			"url", rawURL,
			"attempt", attempt+1,
			"max_attempts", c.maxRetries+1,
		)

		resp, err := c.send(ctx, method, rawURL, params, form)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			telemetry.HTTPRequests.WithLabelValues(method, "error").Inc()

			if !c.retryEnabled || attempt >= c.maxRetries {
				c.logger.Error("http request failed",
					"method", method,
					"url", rawURL,
					"attempts", attempt+1,
					"error", err,
				)
				return nil, err
			}

			attempt++
			delay := c.backoff(attempt)
			telemetry.HTTPRetries.WithLabelValues("network").Inc()

			c.logger.Warn("http network error, retrying",
				"method", method,
				"url", rawURL,
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"delay", delay,
				"error", err,
			)

			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		telemetry.HTTPRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

		rateLimited := isRateLimited(resp)
		if rateLimited || c.retryable[resp.StatusCode] {
			if !c.retryEnabled || attempt >= c.maxRetries {
				c.logger.Error("http request failed, retries exhausted",
					"method", method,
					"url", rawURL,
					"status", resp.StatusCode,
					"attempts", attempt+1,
					"body", Truncate(string(resp.Body), 200),
				)
				// 2xx с rate-limit в теле не является ошибкой статуса
				if rateLimited && resp.StatusCode < 400 {
					return nil, fmt.Errorf("%w after %d retries: %s",
						ErrRateLimited, attempt, Truncate(string(resp.Body), 200))
				}
				return nil, NewAPIError(resp.StatusCode, resp.Body)
			}

			attempt++
			delay := c.retryDelay(resp, attempt)

			reason := "status_" + strconv.Itoa(resp.StatusCode)
			if rateLimited {
				reason = "rate_limited"
				rateLimitedThisCall = true
				c.setLastRetryDelay(delay)
			}
			telemetry.HTTPRetries.WithLabelValues(reason).Inc()

			c.logger.Warn("http retryable response, retrying",
				"method", method,
				"url", rawURL,
				"status", resp.StatusCode,
				"rate_limited", rateLimited,
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"delay", delay,
				"body", Truncate(string(resp.Body), 100),
			)

			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			apiErr := NewAPIError(resp.StatusCode, resp.Body)
			c.logger.Error("http request failed",
				"method", method,
				"url", rawURL,
				"status", resp.StatusCode,
				"error", apiErr.Error(),
			)
			return nil, apiErr
		}

		// Чистый успех сбрасывает задержку; успех после rate-limit
		// сохраняет её для темпа следующих запросов.
		if !rateLimitedThisCall {
			c.setLastRetryDelay(0)
		}
		return resp, nil
	}
}

// send выполняет один HTTP-запрос и читает тело.
func (c *Client) send(ctx context.Context, method, rawURL string, params, form url.Values) (*Response, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// retryDelay — Retry-After (если числовой) или экспоненциальный backoff, не больше MaxBackoff.
func (c *Client) retryDelay(resp *Response, attempt int) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(v))
		if err == nil && seconds >= 0 {
			return min(time.Duration(seconds)*time.Second, c.maxBackoff)
		}
		c.logger.Warn("invalid Retry-After header, using backoff", "value", v)
	}
	return c.backoff(attempt)
}

// backoff — BaseDelay * 2^(attempt-1), не больше MaxBackoff.
func (c *Client) backoff(attempt int) time.Duration {
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	return min(delay, c.maxBackoff)
}

// isRateLimited — 429 или JSON-тело {"error": "user_api_threshold"}.
func isRateLimited(resp *Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return false
	}
	return payload.Error == rateLimitErrorName
}

// SleepContext ждёт d или отмены ctx. Возвращает ctx.Err() при отмене.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
