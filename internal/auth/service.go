// Package auth хранит OAuth-токен аккаунта и обновляет его.
//
// Service — коллаборатор аутентификации для воркеров: выдаёт валидный
// access token, проверяет его через placebo и принудительно обновляет
// по refresh token при 401 от API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/shaiso/Deviart/internal/config"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/repo"
	"github.com/shaiso/Deviart/internal/telemetry"
)

// expiryLeeway — запас до истечения, при котором токен уже обновляется.
const expiryLeeway = time.Minute

// TokenStore — хранилище токена (одна запись).
type TokenStore interface {
	// Load возвращает repo.ErrNotFound, если токена ещё нет.
	Load(ctx context.Context) (*domain.Token, error)
	Save(ctx context.Context, token *domain.Token) error
}

// Validator проверяет токен запросом к API.
type Validator interface {
	Placebo(ctx context.Context, token string) error
}

// Config — конфигурация Service.
type Config struct {
	OAuth     *oauth2.Config
	Store     TokenStore
	Validator Validator

	// HTTPClient — транспорт для token endpoint (опционально).
	HTTPClient *http.Client

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// Service — OAuth-аутентификация аккаунта.
type Service struct {
	oauth      *oauth2.Config
	store      TokenStore
	validator  Validator
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger

	// mu сериализует обновление токена.
	mu sync.Mutex
}

// New создаёт Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		oauth:      cfg.OAuth,
		store:      cfg.Store,
		validator:  cfg.Validator,
		httpClient: cfg.HTTPClient,
		now:        cfg.Now,
		logger:     cfg.Logger.With("component", "auth"),
	}
}

// NewOAuthConfig собирает oauth2.Config из конфигурации приложения.
// Внешний token endpoint принимает client_id/client_secret только в параметрах.
func NewOAuthConfig(cfg config.DeviantArtConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeURL возвращает адрес страницы авторизации.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state)
}

// Exchange обменивает authorization code на токен и сохраняет его.
func (s *Service) Exchange(ctx context.Context, code string) error {
	tok, err := s.oauth.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := s.save(ctx, tok); err != nil {
		return err
	}
	s.logger.Info("authorized", "expires_at", tok.Expiry)
	return nil
}

// ValidToken возвращает действующий access token, при необходимости обновляя его.
func (s *Service) ValidToken(ctx context.Context) (string, error) {
	stored, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if stored.AccessToken != "" && !stored.Expired(s.now(), expiryLeeway) {
		return stored.AccessToken, nil
	}

	s.logger.Info("token expired or missing, refreshing")
	return s.Refresh(ctx)
}

// Refresh принудительно обновляет токен по refresh token.
func (s *Service) Refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(ctx)
	if err != nil {
		return "", err
	}
	if stored.RefreshToken == "" {
		telemetry.TokenRefreshes.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("%w: %w", ErrNotAuthenticated, ErrNoRefreshToken)
	}

	// Пустой access token заставляет TokenSource пойти за новым.
	src := s.oauth.TokenSource(s.clientContext(ctx), &oauth2.Token{
		RefreshToken: stored.RefreshToken,
	})
	tok, err := src.Token()
	if err != nil {
		telemetry.TokenRefreshes.WithLabelValues("failed").Inc()
		s.logger.Error("token refresh failed", "error", err)
		return "", fmt.Errorf("%w: refresh: %w", ErrNotAuthenticated, err)
	}

	if err := s.save(ctx, tok); err != nil {
		return "", err
	}
	telemetry.TokenRefreshes.WithLabelValues("success").Inc()
	s.logger.Info("token refreshed", "expires_at", tok.Expiry)
	return tok.AccessToken, nil
}

// EnsureAuthenticated проверяет токен через placebo; при отказе обновляет
// его один раз и проверяет снова.
func (s *Service) EnsureAuthenticated(ctx context.Context) error {
	token, err := s.ValidToken(ctx)
	if err != nil {
		return err
	}

	err = s.validator.Placebo(ctx, token)
	if err == nil {
		return nil
	}
	s.logger.Warn("token validation failed, refreshing", "error", err)

	token, err = s.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := s.validator.Placebo(ctx, token); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	return nil
}

// Status — состояние авторизации для дашборда.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	Expired       bool      `json:"expired"`
}

// Status возвращает состояние сохранённого токена без обращения к API.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stored, err := s.store.Load(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return &Status{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &Status{
		Authenticated: stored.AccessToken != "",
		ExpiresAt:     stored.ExpiresAt,
		Expired:       stored.Expired(s.now(), 0),
	}, nil
}

func (s *Service) load(ctx context.Context) (*domain.Token, error) {
	stored, err := s.store.Load(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return stored, nil
}

func (s *Service) save(ctx context.Context, tok *oauth2.Token) error {
	err := s.store.Save(ctx, &domain.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		UpdatedAt:    s.now(),
	})
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

func (s *Service) clientContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}
