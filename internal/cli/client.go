package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkerStatus — статус воркера. Поля фичи (queue_remaining, send_stats, ...)
// остаются в Extra.
type WorkerStatus struct {
	Feature             string `json:"feature"`
	Running             bool   `json:"running"`
	State               string `json:"state"`
	Processed           int    `json:"processed"`
	Errors              int    `json:"errors"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error"`
	StopReason          string `json:"stop_reason,omitempty"`

	Extra map[string]any `json:"-"`
}

// UnmarshalJSON раскладывает общие поля статуса и сохраняет остальные в Extra.
func (s *WorkerStatus) UnmarshalJSON(data []byte) error {
	type plain WorkerStatus
	if err := json.Unmarshal(data, (*plain)(s)); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"feature", "running", "state", "processed", "errors",
		"consecutive_failures", "last_error", "stop_reason", "started_at", "stopped_at"} {
		delete(all, k)
	}
	if len(all) > 0 {
		s.Extra = all
	}
	return nil
}

// MarshalJSON возвращает статус в исходном плоском виде.
func (s WorkerStatus) MarshalJSON() ([]byte, error) {
	type plain WorkerStatus
	data, err := json.Marshal(plain(s))
	if err != nil || len(s.Extra) == 0 {
		return data, err
	}

	out := make(map[string]any, len(s.Extra)+8)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// ActionResponse — ответ на действие.
type ActionResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// StopResponse — ответ на остановку воркера.
type StopResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Stopped bool   `json:"stopped"`
}

// QueueStats — количество элементов очереди по статусам.
type QueueStats struct {
	ByStatus map[string]int `json:"by_status"`
	Total    int            `json:"total"`
}

// LogStats — итоги журнала.
type LogStats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Deleted int `json:"deleted"`
	Total   int `json:"total"`
}

// Template — шаблон сообщения.
type Template struct {
	ID        int64  `json:"message_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// Recipient — получатель рассылки.
type Recipient struct {
	Username string `json:"username"`
	UserID   string `json:"userid"`
}

// AuthStatus — состояние авторизации аккаунта.
type AuthStatus struct {
	Authenticated bool   `json:"authenticated"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	Expired       bool   `json:"expired"`
}

// --- Request types ---

// StartWorkerRequest — параметры запуска воркера.
type StartWorkerRequest struct {
	TemplateID int64  `json:"template_id,omitempty"`
	Username   string `json:"username,omitempty"`
}

// TemplateRequest — создание шаблона.
type TemplateRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	IsActive *bool  `json:"is_active,omitempty"`
}

// UpdateTemplateRequest — частичное обновление шаблона.
type UpdateTemplateRequest struct {
	Title    *string `json:"title,omitempty"`
	Body     *string `json:"body,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ListOpts — фильтрация списков очередей и журналов.
type ListOpts struct {
	Status string
	Limit  int
	Offset int
}

func (o ListOpts) values() url.Values {
	params := url.Values{}
	if o.Status != "" {
		params.Set("status", o.Status)
	}
	if o.Limit > 0 {
		params.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Offset > 0 {
		params.Set("offset", strconv.Itoa(o.Offset))
	}
	return params
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type countData struct {
	Count int64 `json:"count"`
}

// APIError — ошибка, которую вернул сервер.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для API дашборда Deviart.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// stats sync выполняется синхронно и может занять несколько минут
			Timeout: 10 * time.Minute,
		},
	}
}

// --- Workers ---

// ListWorkers возвращает статусы всех воркеров.
func (c *Client) ListWorkers() ([]WorkerStatus, error) {
	var statuses []WorkerStatus
	err := c.list("/api/workers", nil, &statuses)
	return statuses, err
}

// StartWorker запускает воркер фичи.
func (c *Client) StartWorker(feature string, req StartWorkerRequest) (*ActionResponse, error) {
	var resp ActionResponse
	err := c.action(http.MethodPost, "/api/"+feature+"/worker/start", req, &resp)
	return &resp, err
}

// StopWorker останавливает воркер фичи.
func (c *Client) StopWorker(feature string) (*StopResponse, error) {
	var resp StopResponse
	err := c.action(http.MethodPost, "/api/"+feature+"/worker/stop", nil, &resp)
	return &resp, err
}

// WorkerStatus возвращает статус воркера фичи.
func (c *Client) WorkerStatus(feature string) (*WorkerStatus, error) {
	var st WorkerStatus
	err := c.get("/api/"+feature+"/worker/status", &st)
	return &st, err
}

// --- Queues ---

// ListQueue возвращает элементы очереди фичи. Поля элементов зависят от фичи.
func (c *Client) ListQueue(feature string, opts ListOpts) ([]map[string]any, error) {
	var items []map[string]any
	err := c.getWithParams("/api/"+feature+"/queue", opts.values(), &items)
	return items, err
}

// QueueStats возвращает статистику очереди фичи.
func (c *Client) QueueStats(feature string) (*QueueStats, error) {
	var stats QueueStats
	err := c.get("/api/"+feature+"/queue/stats", &stats)
	return &stats, err
}

// ClearQueue удаляет элементы очереди в статусе status (все, если пусто).
func (c *Client) ClearQueue(feature, status string) (int64, error) {
	return c.count("/api/"+feature+"/queue/clear", map[string]string{"status": status})
}

// ResetFailed возвращает failed элементы очереди в pending.
func (c *Client) ResetFailed(feature string) (int64, error) {
	return c.count("/api/"+feature+"/queue/reset-failed", nil)
}

// RemoveFromQueue удаляет элементы очереди по ключам.
func (c *Client) RemoveFromQueue(feature string, keys []string) (int64, error) {
	return c.count("/api/"+feature+"/queue/remove", map[string][]string{"keys": keys})
}

// EnqueueBroadcast ставит получателей в очередь рассылки шаблона messageID.
// Без получателей используются сохранённые watchers.
func (c *Client) EnqueueBroadcast(messageID int64, recipients []Recipient) (*ActionResponse, error) {
	body := map[string]any{"message_id": messageID}
	if len(recipients) > 0 {
		body["recipients"] = recipients
	}
	var resp ActionResponse
	err := c.action(http.MethodPost, "/api/broadcast/queue/add", body, &resp)
	return &resp, err
}

// RetryFailedBroadcast возвращает failed получателей в очередь.
func (c *Client) RetryFailedBroadcast() (int64, error) {
	return c.count("/api/broadcast/queue/retry-failed", nil)
}

// --- Collectors ---

// CollectComments собирает ленту в очередь комментариев.
func (c *Client) CollectComments(source string, maxPages int) (*ActionResponse, error) {
	body := map[string]any{"source": source}
	if maxPages > 0 {
		body["max_pages"] = maxPages
	}
	return c.collect("/api/comments/collect", body)
}

// CollectFeed собирает ленту в очередь избранного.
func (c *Client) CollectFeed(maxPages int) (*ActionResponse, error) {
	body := map[string]any{}
	if maxPages > 0 {
		body["max_pages"] = maxPages
	}
	return c.collect("/api/fave/collect", body)
}

// FetchWatchers обновляет список watchers.
func (c *Client) FetchWatchers(username string, maxWatchers int) (*ActionResponse, error) {
	body := map[string]any{"username": username}
	if maxWatchers > 0 {
		body["max_watchers"] = maxWatchers
	}
	return c.collect("/api/broadcast/watchers/fetch", body)
}

// SyncStats синхронизирует статистику галереи.
func (c *Client) SyncStats(username string) (*ActionResponse, error) {
	return c.collect("/api/stats/sync", map[string]any{"username": username})
}

func (c *Client) collect(path string, body any) (*ActionResponse, error) {
	var resp ActionResponse
	err := c.action(http.MethodPost, path, body, &resp)
	return &resp, err
}

// --- Templates ---

// ListTemplates возвращает шаблоны фичи.
func (c *Client) ListTemplates(feature string) ([]Template, error) {
	var templates []Template
	err := c.list("/api/"+feature+"/templates", nil, &templates)
	return templates, err
}

// CreateTemplate создаёт шаблон.
func (c *Client) CreateTemplate(feature string, req TemplateRequest) (*Template, error) {
	var t Template
	err := c.doData(http.MethodPost, "/api/"+feature+"/templates", req, &t)
	return &t, err
}

// UpdateTemplate обновляет шаблон.
func (c *Client) UpdateTemplate(feature string, id int64, req UpdateTemplateRequest) (*Template, error) {
	var t Template
	err := c.doData(http.MethodPut, templatePath(feature, id), req, &t)
	return &t, err
}

// DeleteTemplate удаляет шаблон.
func (c *Client) DeleteTemplate(feature string, id int64) error {
	return c.action(http.MethodDelete, templatePath(feature, id), nil, nil)
}

func templatePath(feature string, id int64) string {
	return "/api/" + feature + "/templates/" + strconv.FormatInt(id, 10)
}

// --- Logs ---

// ListLogs возвращает журнал фичи (comments или broadcast).
func (c *Client) ListLogs(feature string, opts ListOpts) ([]map[string]any, error) {
	var logs []map[string]any
	err := c.list("/api/"+feature+"/logs", opts.values(), &logs)
	return logs, err
}

// LogStats возвращает итоги журнала фичи.
func (c *Client) LogStats(feature string) (*LogStats, error) {
	var stats LogStats
	err := c.get("/api/"+feature+"/logs/stats", &stats)
	return &stats, err
}

// --- Auth ---

// AuthStatus возвращает состояние авторизации.
func (c *Client) AuthStatus() (*AuthStatus, error) {
	var st AuthStatus
	err := c.get("/api/auth/status", &st)
	return &st, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) getWithParams(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) count(path string, body any) (int64, error) {
	var resp struct {
		Data countData `json:"data"`
	}
	if err := c.action(http.MethodPost, path, body, &resp); err != nil {
		return 0, err
	}
	return resp.Data.Count, nil
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	var dr dataResponse
	if err := c.action(method, path, body, &dr); err != nil {
		return err
	}
	if result != nil && len(dr.Data) > 0 {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

// action выполняет запрос и декодирует тело ответа целиком в result.
func (c *Client) action(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil {
		return &APIError{Status: resp.StatusCode}
	}
	return apiErr
}
