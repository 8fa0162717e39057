package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Deviart/internal/config"
	"github.com/shaiso/Deviart/internal/control"
	"github.com/shaiso/Deviart/internal/telemetry"
)

const (
	defaultLockInterval   = 5 * time.Second
	defaultPublishTimeout = 10 * time.Second
)

// Publisher отправляет команды управления (mq.Publisher).
type Publisher interface {
	PublishCommand(ctx context.Context, cmd control.Command) error
}

// Job — cron-задание, публикующее одну команду.
type Job struct {
	Name    string
	Spec    string
	Command control.Command
}

// JobsFromConfig строит задания из конфигурации. Пустое выражение
// отключает задание.
func JobsFromConfig(cfg config.SchedulerConfig) []Job {
	maxPages := strconv.Itoa(cfg.MaxPages)

	all := []Job{
		{
			Name: "fave-collect",
			Spec: cfg.FeedCollectCron,
			Command: control.Command{
				Feature: "fave",
				Action:  control.ActionCollect,
				Args:    map[string]string{"max_pages": maxPages},
			},
		},
		{
			Name: "comments-collect",
			Spec: cfg.CommentCollectCron,
			Command: control.Command{
				Feature: "comments",
				Action:  control.ActionCollect,
				Args:    map[string]string{"source": cfg.CommentSource, "max_pages": maxPages},
			},
		},
		{
			Name: "stats-sync",
			Spec: cfg.StatsSyncCron,
			Command: control.Command{
				Feature: "stats",
				Action:  control.ActionSync,
			},
		},
	}

	jobs := make([]Job, 0, len(all))
	for _, j := range all {
		if j.Spec != "" {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Config — конфигурация Scheduler.
type Config struct {
	Jobs      []Job
	Publisher Publisher

	// Locker — выбор лидера; nil — экземпляр всегда лидер.
	Locker Locker

	// LockInterval — период попыток стать лидером (default: 5s).
	LockInterval time.Duration

	// Location — часовой пояс расписаний (default: UTC).
	Location *time.Location

	Logger *slog.Logger
}

// Scheduler публикует команды по cron-расписанию, пока держит лидерство.
type Scheduler struct {
	cron         *cron.Cron
	jobs         []Job
	ids          []cron.EntryID
	publisher    Publisher
	locker       Locker
	lockInterval time.Duration
	logger       *slog.Logger

	leader atomic.Bool

	mu  sync.Mutex
	ctx context.Context
}

// New создаёт Scheduler и регистрирует задания. Невалидное
// cron-выражение — ошибка конфигурации.
func New(cfg Config) (*Scheduler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	interval := cfg.LockInterval
	if interval <= 0 {
		interval = defaultLockInterval
	}

	clog := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLocation(loc),
			cron.WithLogger(clog),
			cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
		),
		jobs:         cfg.Jobs,
		publisher:    cfg.Publisher,
		locker:       cfg.Locker,
		lockInterval: interval,
		logger:       logger,
		ctx:          context.Background(),
	}

	for _, job := range cfg.Jobs {
		if err := ValidateCronExpr(job.Spec); err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		id, err := s.cron.AddFunc(job.Spec, func() { s.fire(job) })
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", job.Name, err)
		}
		s.ids = append(s.ids, id)
	}

	if s.locker == nil {
		s.leader.Store(true)
	}
	return s, nil
}

// Run запускает cron и выборы лидера; возвращается после отмены ctx,
// дождавшись выполняющихся заданий.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	for _, e := range s.Entries() {
		s.logger.Info("scheduled job", "job", e.Name, "spec", e.Spec, "next", e.Next)
	}

	s.cron.Start()
	defer func() {
		<-s.cron.Stop().Done()
		s.resign()
	}()

	if s.locker == nil {
		<-ctx.Done()
		return nil
	}

	tk := time.NewTicker(s.lockInterval)
	defer tk.Stop()

	for {
		s.elect(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-tk.C:
		}
	}
}

// IsLeader сообщает, публикует ли экземпляр задания.
func (s *Scheduler) IsLeader() bool {
	return s.leader.Load()
}

// elect пытается стать лидером или подтверждает лидерство.
func (s *Scheduler) elect(ctx context.Context) {
	ok, err := s.locker.TryLock(ctx)
	if err != nil {
		s.logger.Warn("leader lock failed", "error", err)
		ok = false
	}

	if was := s.leader.Swap(ok); was != ok {
		if ok {
			s.logger.Info("became scheduler leader")
			telemetry.SchedulerLeader.Set(1)
		} else {
			s.logger.Warn("lost scheduler leadership")
			telemetry.SchedulerLeader.Set(0)
		}
	}
}

func (s *Scheduler) resign() {
	if s.locker == nil || !s.leader.Swap(false) {
		return
	}
	telemetry.SchedulerLeader.Set(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.Unlock(ctx); err != nil {
		s.logger.Warn("release leader lock failed", "error", err)
	}
}

// fire — тело cron-задания.
func (s *Scheduler) fire(job Job) {
	s.mu.Lock()
	parent := s.ctx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, defaultPublishTimeout)
	defer cancel()

	if err := s.Trigger(ctx, job); err != nil {
		s.logger.Error("scheduled job failed", "job", job.Name, "error", err)
	}
}

// Trigger публикует команду задания, если экземпляр — лидер.
func (s *Scheduler) Trigger(ctx context.Context, job Job) error {
	if !s.IsLeader() {
		s.logger.Debug("not leader, skipping job", "job", job.Name)
		telemetry.SchedulerTriggers.WithLabelValues(job.Name, "skipped").Inc()
		return nil
	}

	if err := s.publisher.PublishCommand(ctx, job.Command); err != nil {
		telemetry.SchedulerTriggers.WithLabelValues(job.Name, "failed").Inc()
		return fmt.Errorf("publish %s %s: %w", job.Command.Feature, job.Command.Action, err)
	}

	telemetry.SchedulerTriggers.WithLabelValues(job.Name, "published").Inc()
	s.logger.Info("scheduled command published",
		"job", job.Name,
		"feature", job.Command.Feature,
		"action", job.Command.Action,
	)
	return nil
}

// Entry — задание и его ближайшее срабатывание.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Entries возвращает задания в порядке регистрации.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.jobs))
	for i, job := range s.jobs {
		e := Entry{Name: job.Name, Spec: job.Spec, Next: s.cron.Entry(s.ids[i]).Next}
		// До Start cron ещё не рассчитал срабатывания
		if e.Next.IsZero() {
			e.Next, _ = NextRun(job.Spec, time.Now())
		}
		out = append(out, e)
	}
	return out
}
