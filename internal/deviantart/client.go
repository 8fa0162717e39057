// Package deviantart — типизированные вызовы внешнего API поверх httpclient.
//
// Токен передаётся параметром access_token в каждом вызове, чтобы
// воркер мог подставить обновлённый токен при повторе после 401.
package deviantart

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/shaiso/Deviart/internal/httpclient"
)

// DefaultBaseURL — базовый адрес API.
const DefaultBaseURL = "https://www.deviantart.com/api/v1/oauth2"

// Размеры страниц, допустимые API.
const (
	FeedPageLimit     = 50
	WatchersPageLimit = 50
	GalleryPageLimit  = 24
	MetadataBatchSize = 10
)

// Feed — лента для сбора работ.
type Feed string

const (
	FeedWatch  Feed = "deviantsyouwatch"
	FeedNewest Feed = "newest"
)

// Client — клиент API.
type Client struct {
	http    *httpclient.Client
	baseURL string
}

// New создаёт Client. Пустой baseURL — DefaultBaseURL.
func New(http *httpclient.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: http, baseURL: baseURL}
}

// RecommendedDelay — пауза перед следующим запросом.
func (c *Client) RecommendedDelay() time.Duration {
	return c.http.RecommendedDelay()
}

// BrowseFeed возвращает страницу ленты.
func (c *Client) BrowseFeed(ctx context.Context, token string, feed Feed, offset, limit int) (*Page[Deviation], error) {
	params := url.Values{
		"access_token":   {token},
		"offset":         {strconv.Itoa(offset)},
		"limit":          {strconv.Itoa(limit)},
		"mature_content": {"true"},
	}

	var page Page[Deviation]
	if err := c.getJSON(ctx, "/browse/"+string(feed), params, &page); err != nil {
		return nil, fmt.Errorf("browse %s: %w", feed, err)
	}
	return &page, nil
}

// GetDeviation возвращает работу по ID.
func (c *Client) GetDeviation(ctx context.Context, token, deviationID string) (*Deviation, error) {
	params := url.Values{"access_token": {token}}

	var d Deviation
	if err := c.getJSON(ctx, "/deviation/"+url.PathEscape(deviationID), params, &d); err != nil {
		return nil, fmt.Errorf("get deviation %s: %w", deviationID, err)
	}
	return &d, nil
}

// Fave добавляет работу в избранное.
func (c *Client) Fave(ctx context.Context, token, deviationID string) error {
	form := url.Values{
		"access_token": {token},
		"deviationid":  {deviationID},
	}
	if _, err := c.http.PostForm(ctx, c.baseURL+"/collections/fave", form); err != nil {
		return fmt.Errorf("fave %s: %w", deviationID, err)
	}
	return nil
}

type commentResponse struct {
	CommentID string `json:"commentid"`
}

// PostDeviationComment публикует комментарий к работе и возвращает commentid.
func (c *Client) PostDeviationComment(ctx context.Context, token, deviationID, body string) (string, error) {
	form := url.Values{
		"access_token": {token},
		"body":         {body},
	}

	var resp commentResponse
	if err := c.postJSON(ctx, "/comments/post/deviation/"+url.PathEscape(deviationID), form, &resp); err != nil {
		return "", fmt.Errorf("post deviation comment %s: %w", deviationID, err)
	}
	return resp.CommentID, nil
}

// PostProfileComment публикует комментарий в профиле пользователя.
func (c *Client) PostProfileComment(ctx context.Context, token, username, body string) (string, error) {
	form := url.Values{
		"access_token": {token},
		"body":         {body},
	}

	var resp commentResponse
	if err := c.postJSON(ctx, "/comments/post/profile/"+url.PathEscape(username), form, &resp); err != nil {
		return "", fmt.Errorf("post profile comment %s: %w", username, err)
	}
	return resp.CommentID, nil
}

// Watchers возвращает страницу наблюдателей пользователя.
func (c *Client) Watchers(ctx context.Context, token, username string, offset, limit int) (*Page[Watcher], error) {
	params := url.Values{
		"access_token": {token},
		"offset":       {strconv.Itoa(offset)},
		"limit":        {strconv.Itoa(limit)},
	}

	var page Page[Watcher]
	if err := c.getJSON(ctx, "/user/watchers/"+url.PathEscape(username), params, &page); err != nil {
		return nil, fmt.Errorf("watchers %s: %w", username, err)
	}
	return &page, nil
}

// Gallery возвращает страницу всех работ галереи пользователя.
func (c *Client) Gallery(ctx context.Context, token, username string, offset, limit int) (*Page[Deviation], error) {
	params := url.Values{
		"access_token":   {token},
		"username":       {username},
		"offset":         {strconv.Itoa(offset)},
		"limit":          {strconv.Itoa(limit)},
		"mature_content": {"true"},
	}

	var page Page[Deviation]
	if err := c.getJSON(ctx, "/gallery/all", params, &page); err != nil {
		return nil, fmt.Errorf("gallery %s: %w", username, err)
	}
	return &page, nil
}

// Metadata возвращает метаданные и статистику пачки работ (не больше MetadataBatchSize).
func (c *Client) Metadata(ctx context.Context, token string, deviationIDs []string) ([]Metadata, error) {
	if len(deviationIDs) > MetadataBatchSize {
		return nil, fmt.Errorf("metadata batch too large: %d > %d", len(deviationIDs), MetadataBatchSize)
	}

	params := url.Values{
		"access_token":   {token},
		"ext_stats":      {"true"},
		"ext_submission": {"true"},
		"mature_content": {"true"},
	}
	for _, id := range deviationIDs {
		params.Add("deviationids[]", id)
	}

	var resp struct {
		Metadata []Metadata `json:"metadata"`
	}
	if err := c.getJSON(ctx, "/deviation/metadata", params, &resp); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return resp.Metadata, nil
}

// Placebo проверяет валидность токена.
func (c *Client) Placebo(ctx context.Context, token string) error {
	params := url.Values{"access_token": {token}}

	var resp struct {
		Status string `json:"status"`
	}
	if err := c.getJSON(ctx, "/placebo", params, &resp); err != nil {
		return fmt.Errorf("placebo: %w", err)
	}
	if resp.Status != "success" {
		return fmt.Errorf("placebo: unexpected status %q", resp.Status)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	resp, err := c.http.Get(ctx, c.baseURL+path, params)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}

func (c *Client) postJSON(ctx context.Context, path string, form url.Values, v any) error {
	resp, err := c.http.PostForm(ctx, c.baseURL+path, form)
	if err != nil {
		return err
	}
	return resp.JSON(v)
}
