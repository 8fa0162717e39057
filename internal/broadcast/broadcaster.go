package broadcast

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Deviart/internal/domain"
	"github.com/shaiso/Deviart/internal/httpclient"
	tmpl "github.com/shaiso/Deviart/internal/template"
	"github.com/shaiso/Deviart/internal/worker"
)

// Job — получатель, взятый из очереди, и подготовленное сообщение.
type Job struct {
	Item      domain.ProfileItem
	Template  *domain.Template
	Text      string
	CommentID string
}

// Name реализует worker.Feature.
func (s *Service) Name() string { return FeatureName }

// Validate требует pending-получателей и активный шаблон.
func (s *Service) Validate(ctx context.Context, _ worker.StartOptions) error {
	pending, err := s.queue.CountPending(ctx)
	if err != nil {
		return fmt.Errorf("count pending: %w", err)
	}
	if pending == 0 {
		return worker.Preconditionf("queue is empty, add recipients first")
	}

	active, err := s.templates.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("count active templates: %w", err)
	}
	if active == 0 {
		return worker.Preconditionf("no active message templates found")
	}
	return nil
}

// Claim берёт получателя с наибольшим приоритетом, затем самого старого.
func (s *Service) Claim(ctx context.Context) (*Job, error) {
	item, err := s.queue.ClaimPending(ctx)
	if err != nil || item == nil {
		return nil, err
	}
	return &Job{Item: *item}, nil
}

// Key реализует worker.Feature.
func (s *Service) Key(job *Job) string { return job.Item.RecipientUsername }

// Attempts реализует worker.Feature.
func (s *Service) Attempts(job *Job) int { return job.Item.Attempts }

// Prepare раскрывает шаблон получателя; если он выключен — случайный активный.
func (s *Service) Prepare(ctx context.Context, _ string, job *Job) error {
	t, err := tmpl.Select(ctx, s.templates, job.Item.MessageID)
	if errors.Is(err, tmpl.ErrNoActive) {
		t, err = tmpl.Select(ctx, s.templates, 0)
	}
	if err != nil {
		if errors.Is(err, tmpl.ErrNoActive) {
			return fmt.Errorf("%w: %v", worker.ErrNoTemplates, err)
		}
		return err
	}
	job.Template = t
	job.Text = tmpl.Randomize(t.Body)
	return nil
}

// Execute публикует комментарий в профиль получателя.
func (s *Service) Execute(ctx context.Context, token string, job *Job) error {
	commentID, err := s.api.PostProfileComment(ctx, token, job.Item.RecipientUsername, job.Text)
	if err != nil {
		return err
	}
	job.CommentID = commentID
	return nil
}

// Succeeded реализует worker.Feature.
func (s *Service) Succeeded(ctx context.Context, job *Job) error {
	s.addLog(ctx, job, domain.LogSent, "")
	return s.queue.MarkCompleted(ctx, job.Item.ID)
}

// Failed реализует worker.Feature. В журнал попадает только окончательная ошибка.
func (s *Service) Failed(ctx context.Context, job *Job, cause error, permanent bool) error {
	msg := httpclient.ErrorText(cause)
	if !permanent {
		return s.queue.BumpAttempt(ctx, job.Item.ID, msg)
	}
	s.addLog(ctx, job, domain.LogFailed, msg)
	return s.queue.MarkFailed(ctx, job.Item.ID, msg)
}

// ReportStatus добавляет остаток очереди и итоги журнала.
func (s *Service) ReportStatus(ctx context.Context) map[string]any {
	extra := make(map[string]any, 2)
	if pending, err := s.queue.CountPending(ctx); err == nil {
		extra["queue_remaining"] = pending
	}
	if stats, err := s.logs.Stats(ctx); err == nil {
		extra["send_stats"] = stats
	}
	return extra
}

func (s *Service) addLog(ctx context.Context, job *Job, status domain.LogStatus, errMsg string) {
	messageID := job.Item.MessageID
	if job.Template != nil {
		messageID = job.Template.ID
	}
	entry := &domain.ProfileLog{
		MessageID:         messageID,
		RecipientUsername: job.Item.RecipientUsername,
		RecipientUserID:   job.Item.RecipientUserID,
		CommentID:         job.CommentID,
		Status:            status,
		ErrorMessage:      errMsg,
	}
	if err := s.logs.Add(ctx, entry); err != nil {
		s.logger.Error("failed to write profile log", "recipient", job.Item.RecipientUsername, "error", err)
	}
}

var (
	_ worker.Feature[Job]   = (*Service)(nil)
	_ worker.StatusReporter = (*Service)(nil)
)
