package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
	tmpl "github.com/shaiso/Deviart/internal/template"
	"github.com/shaiso/Deviart/internal/worker"
)

// FeatureName — имя фичи комментирования.
const FeatureName = "comments"

// MaxAttempts — попыток на одну работу до статуса failed.
const MaxAttempts = 3

// Job — работа, взятая постером из очереди.
type Job struct {
	Item      domain.CommentItem
	Template  *domain.Template
	Text      string
	CommentID string
}

// PosterConfig — зависимости Poster.
type PosterConfig struct {
	API       API
	Queue     Queue
	Logs      Logs
	Templates Templates
	Logger    *slog.Logger
}

// Poster — фича комментирования для worker.Worker.
//
// Перед паузой проверяет, что работа существует: 404 или 500 означают,
// что её удалили, и элемент убирается из очереди без учёта ошибки.
// После комментария пытается добавить работу в избранное; неудача
// только логируется.
type Poster struct {
	api       API
	queue     Queue
	logs      Logs
	templates Templates
	logger    *slog.Logger

	mu         sync.Mutex
	templateID int64
}

// NewPoster создаёт Poster.
func NewPoster(cfg PosterConfig) *Poster {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		api:       cfg.API,
		queue:     cfg.Queue,
		logs:      cfg.Logs,
		templates: cfg.Templates,
		logger:    logger,
	}
}

// Name реализует worker.Feature.
func (p *Poster) Name() string { return FeatureName }

// Validate требует непустую очередь и активный шаблон.
// Параметр template_id фиксирует шаблон на весь запуск.
func (p *Poster) Validate(ctx context.Context, opts worker.StartOptions) error {
	pending, err := p.queue.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if pending == 0 {
		return worker.Preconditionf("queue is empty, collect first")
	}

	var templateID int64
	if v := opts.Params["template_id"]; v != "" {
		templateID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || templateID <= 0 {
			return worker.Preconditionf("invalid template_id %q", v)
		}
		t, err := p.templates.GetByID(ctx, templateID)
		if err != nil {
			return worker.Preconditionf("template %d not found", templateID)
		}
		if !t.IsActive {
			return worker.Preconditionf("template %d is not active", templateID)
		}
	} else {
		active, err := p.templates.CountActive(ctx)
		if err != nil {
			return fmt.Errorf("count active templates: %w", err)
		}
		if active == 0 {
			return worker.Preconditionf("no active templates found")
		}
	}

	p.mu.Lock()
	p.templateID = templateID
	p.mu.Unlock()
	return nil
}

// Claim реализует worker.Feature.
func (p *Poster) Claim(ctx context.Context) (*Job, error) {
	item, err := p.queue.ClaimPending(ctx)
	if err != nil || item == nil {
		return nil, err
	}
	return &Job{Item: *item}, nil
}

// Key реализует worker.Feature.
func (p *Poster) Key(job *Job) string { return job.Item.DeviationID }

// Attempts реализует worker.Feature.
func (p *Poster) Attempts(job *Job) int { return job.Item.Attempts }

// Prepare выбирает шаблон, раскрывает его и проверяет работу.
func (p *Poster) Prepare(ctx context.Context, token string, job *Job) error {
	p.mu.Lock()
	templateID := p.templateID
	p.mu.Unlock()

	t, err := tmpl.Select(ctx, p.templates, templateID)
	if err != nil {
		if errors.Is(err, tmpl.ErrNoActive) {
			return fmt.Errorf("%w: %v", worker.ErrNoTemplates, err)
		}
		return err
	}
	job.Template = t
	job.Text = tmpl.Randomize(t.Body)

	deviation, err := p.api.GetDeviation(ctx, token, job.Item.DeviationID)
	switch {
	case httpclient.HasStatus(err, 404, 500):
		return p.dropDeleted(ctx, job, httpclient.ErrorText(err))
	case err != nil:
		return fmt.Errorf("check deviation: %w", err)
	case deviation.IsDeleted:
		return p.dropDeleted(ctx, job, "deviation is deleted")
	}
	return nil
}

// dropDeleted убирает удалённую работу из очереди и пишет deleted в журнал.
func (p *Poster) dropDeleted(ctx context.Context, job *Job, reason string) error {
	id := job.Item.DeviationID
	if _, err := p.queue.Remove(ctx, []string{id}); err != nil {
		return fmt.Errorf("remove deleted deviation: %w", err)
	}
	p.addLog(ctx, job, domain.LogDeleted, reason)
	return fmt.Errorf("%w: deviation %s deleted", worker.ErrSkipItem, id)
}

// Execute публикует комментарий и добавляет работу в избранное.
func (p *Poster) Execute(ctx context.Context, token string, job *Job) error {
	commentID, err := p.api.PostDeviationComment(ctx, token, job.Item.DeviationID, job.Text)
	if err != nil {
		return err
	}
	job.CommentID = commentID

	if err := p.api.Fave(ctx, token, job.Item.DeviationID); err != nil {
		p.logger.Warn("auto-fave failed", "deviationid", job.Item.DeviationID, "error", httpclient.ErrorText(err))
	}
	return nil
}

// Succeeded реализует worker.Feature.
func (p *Poster) Succeeded(ctx context.Context, job *Job) error {
	p.addLog(ctx, job, domain.LogSent, "")
	return p.queue.MarkCommented(ctx, job.Item.DeviationID)
}

// Failed реализует worker.Feature.
func (p *Poster) Failed(ctx context.Context, job *Job, cause error, permanent bool) error {
	msg := httpclient.ErrorText(cause)
	p.addLog(ctx, job, domain.LogFailed, msg)
	if permanent {
		return p.queue.MarkFailed(ctx, job.Item.DeviationID, msg)
	}
	return p.queue.BumpAttempt(ctx, job.Item.DeviationID, msg)
}

// ReportStatus добавляет в статус остаток очереди.
func (p *Poster) ReportStatus(ctx context.Context) map[string]any {
	pending, err := p.queue.CountPending(ctx)
	if err != nil {
		return nil
	}
	return map[string]any{"queue_remaining": pending}
}

func (p *Poster) addLog(ctx context.Context, job *Job, status domain.LogStatus, errMsg string) {
	entry := &domain.CommentLog{
		DeviationID:    job.Item.DeviationID,
		DeviationURL:   job.Item.DeviationURL,
		AuthorUsername: job.Item.AuthorUsername,
		CommentID:      job.CommentID,
		CommentText:    job.Text,
		Status:         status,
		ErrorMessage:   errMsg,
	}
	if job.Template != nil {
		id := job.Template.ID
		entry.MessageID = &id
	}
	if err := p.logs.Add(ctx, entry); err != nil {
		p.logger.Error("failed to write comment log", "deviationid", job.Item.DeviationID, "error", err)
	}
}

var _ worker.Feature[Job] = (*Poster)(nil)
