package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Deviart/internal/auth"
	"github.com/shaiso/Deviart/internal/broadcast"
	"github.com/shaiso/Deviart/internal/control"
	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/repo"
)

// TemplateStore — шаблоны одной фичи (repo.TemplateRepo).
type TemplateStore interface {
	List(ctx context.Context) ([]domain.Template, error)
	GetByID(ctx context.Context, id int64) (*domain.Template, error)
	Create(ctx context.Context, t *domain.Template) error
	Update(ctx context.Context, t *domain.Template) error
	Delete(ctx context.Context, id int64) error
}

// CommentLogReader — журнал комментариев.
type CommentLogReader interface {
	List(ctx context.Context, filter repo.LogFilter) ([]domain.CommentLog, error)
	Stats(ctx context.Context) (domain.LogStats, error)
}

// ProfileLogReader — журнал сообщений в профиль.
type ProfileLogReader interface {
	List(ctx context.Context, filter repo.LogFilter) ([]domain.ProfileLog, error)
	Stats(ctx context.Context) (domain.LogStats, error)
}

// Broadcaster — постановка получателей в очередь рассылки.
type Broadcaster interface {
	Enqueue(ctx context.Context, messageID int64, recipients []domain.Recipient) (*broadcast.EnqueueResult, error)
	RetryFailed(ctx context.Context) (int64, error)
}

// Authorizer — OAuth-авторизация аккаунта (auth.Service).
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) error
	Status(ctx context.Context) (*auth.Status, error)
}

// Handler — обработчики API дашборда.
type Handler struct {
	control     *control.Dispatcher
	queues      map[string]QueueAdmin
	templates   map[string]TemplateStore
	commentLogs CommentLogReader
	profileLogs ProfileLogReader
	broadcaster Broadcaster
	auth        Authorizer
	staticDir   string
	logger      *slog.Logger
}

// Config — зависимости Handler.
type Config struct {
	Control *control.Dispatcher

	// Queues — администрирование очередей по имени фичи.
	Queues map[string]QueueAdmin

	CommentTemplates TemplateStore
	ProfileTemplates TemplateStore
	CommentLogs      CommentLogReader
	ProfileLogs      ProfileLogReader
	Broadcaster      Broadcaster
	Auth             Authorizer

	// StaticDir — страницы дашборда; пустая строка отключает раздачу.
	StaticDir string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	templates := make(map[string]TemplateStore)
	if cfg.CommentTemplates != nil {
		templates["comments"] = cfg.CommentTemplates
	}
	if cfg.ProfileTemplates != nil {
		templates["broadcast"] = cfg.ProfileTemplates
	}

	queues := cfg.Queues
	if queues == nil {
		queues = make(map[string]QueueAdmin)
	}

	return &Handler{
		control:     cfg.Control,
		queues:      queues,
		templates:   templates,
		commentLogs: cfg.CommentLogs,
		profileLogs: cfg.ProfileLogs,
		broadcaster: cfg.Broadcaster,
		auth:        cfg.Auth,
		staticDir:   cfg.StaticDir,
		logger:      logger,
	}
}
