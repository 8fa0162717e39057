package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shaiso/Deviart/internal/httpclient"
	"github.com/shaiso/Deviart/internal/telemetry"
)

// Значения по умолчанию.
const (
	defaultIdleDelay              = 2 * time.Second
	defaultStopTimeout            = 10 * time.Second
	defaultMaxConsecutiveFailures = 5
)

// Options — параметры цикла.
type Options struct {
	IdleDelay              time.Duration // пауза при пустой очереди (default: 2s)
	BroadcastDelay         Range         // случайная пауза перед вызовом API
	SuccessDelay           Range         // пауза после успеха вместо RecommendedDelay (если задана)
	StopTimeout            time.Duration // ожидание горутины в Stop (default: 10s)
	MaxConsecutiveFailures int           // порог breaker (default: 5)

	// MaxAttempts — после стольких попыток элемент становится failed (0 — без лимита).
	MaxAttempts int

	// StopWhenDrained — завершить цикл, когда очередь опустела.
	StopWhenDrained bool
}

// Config — конфигурация Worker.
type Config[T any] struct {
	Feature Feature[T]

	// Pacer — источник паузы после каждого элемента (обычно API-клиент).
	Pacer Pacer

	Options Options

	// Events — получатель событий (опционально).
	Events EventSink

	// BaseContext — родительский контекст горутины. Горутина живёт дольше
	// запроса, который её запустил, поэтому контекст Start не используется.
	BaseContext context.Context

	Logger *slog.Logger
}

// Worker — фоновая горутина одной фичи: запуск, остановка, статус и общий
// цикл claim → prepare → pause → execute → classify.
//
// Одновременно жива не больше одной горутины; живость определяется по
// каналу done, а не по флагу running.
type Worker[T any] struct {
	feature Feature[T]
	pacer   Pacer
	opts    Options
	events  EventSink
	baseCtx context.Context
	logger  *slog.Logger

	// mu защищает жизненный цикл: cancel, done, auth, token.
	// Порядок блокировок: mu, затем statsMu.
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	auth     Authenticator
	token    string
	starting bool

	statsMu sync.Mutex
	stats   Stats
}

// New создаёт Worker.
func New[T any](cfg Config[T]) *Worker[T] {
	opts := cfg.Options
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = defaultIdleDelay
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = defaultMaxConsecutiveFailures
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	baseCtx := cfg.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	return &Worker[T]{
		feature: cfg.Feature,
		pacer:   cfg.Pacer,
		opts:    opts,
		events:  cfg.Events,
		baseCtx: baseCtx,
		logger:  telemetry.WithFeature(logger, cfg.Feature.Name()),
		stats:   Stats{State: StateStopped},
	}
}

// Name возвращает имя фичи.
func (w *Worker[T]) Name() string {
	return w.feature.Name()
}

// Start проверяет предусловия и запускает горутину фичи.
//
// Токен и предусловия проверяются без mu: Status и Stop не ждут сетевых
// вызовов и запросов к БД. Флаг starting не даёт двум Start пройти проверку
// одновременно.
func (w *Worker[T]) Start(ctx context.Context, opts StartOptions) error {
	w.mu.Lock()
	if w.aliveLocked() || w.starting {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.starting = true
	w.mu.Unlock()

	w.setState(StateStarting)
	token, err := w.prepareStart(ctx, opts)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.starting = false
	if err != nil {
		w.setState(StateStopped)
		return err
	}

	w.auth = opts.Auth
	w.token = token

	now := time.Now()
	w.statsMu.Lock()
	w.stats = Stats{Running: true, State: StateRunning, StartedAt: &now}
	w.statsMu.Unlock()

	runCtx, cancel := context.WithCancel(w.baseCtx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done

	telemetry.WorkerRunning.WithLabelValues(w.Name()).Set(1)
	w.logger.Info("worker started")
	go w.run(runCtx, cancel, done)
	return nil
}

// prepareStart получает токен и проверяет предусловия фичи.
func (w *Worker[T]) prepareStart(ctx context.Context, opts StartOptions) (string, error) {
	token := opts.Token
	if token == "" {
		if opts.Auth == nil {
			return "", ErrNoToken
		}
		var err error
		token, err = opts.Auth.ValidToken(ctx)
		if err != nil {
			return "", fmt.Errorf("get token: %w", err)
		}
	}
	if err := w.feature.Validate(ctx, opts); err != nil {
		return "", err
	}
	return token, nil
}

// Stop просит горутину завершиться и ждёт её не дольше StopTimeout.
// Если горутина не успела, возвращает Stopped=false и "stop requested".
func (w *Worker[T]) Stop() (StopResult, error) {
	w.mu.Lock()
	if !w.aliveLocked() {
		w.mu.Unlock()
		return StopResult{}, ErrNotRunning
	}
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	w.setState(StateStopping)
	w.setStopReason(ReasonRequested)
	cancel()

	timer := time.NewTimer(w.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return StopResult{Stopped: true, Message: "worker stopped"}, nil
	case <-timer.C:
		w.logger.Warn("worker did not stop in time", "timeout", w.opts.StopTimeout)
		return StopResult{Stopped: false, Message: "stop requested"}, nil
	}
}

// Running сообщает, жива ли горутина.
func (w *Worker[T]) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aliveLocked()
}

// Status возвращает состояние воркера. Флаг running сверяется с живостью
// горутины в той же критической секции, что и чтение счётчиков.
func (w *Worker[T]) Status(ctx context.Context) Status {
	w.mu.Lock()
	w.statsMu.Lock()
	alive := w.aliveLocked()
	w.stats.Running = alive
	if !alive {
		if !w.starting {
			w.stats.State = StateStopped
		}
	} else if w.stats.State == StateStopped {
		w.stats.State = StateRunning
	}
	stats := w.stats
	w.statsMu.Unlock()
	w.mu.Unlock()

	status := Status{Feature: w.Name(), Stats: stats}
	if r, ok := w.feature.(StatusReporter); ok {
		status.Extra = r.ReportStatus(ctx)
	}
	return status
}

// aliveLocked проверяет живость горутины. Вызывается под mu.
func (w *Worker[T]) aliveLocked() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// run — тело горутины.
func (w *Worker[T]) run(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()
	defer func() {
		now := time.Now()
		w.statsMu.Lock()
		w.stats.Running = false
		w.stats.State = StateStopped
		w.stats.StoppedAt = &now
		if w.stats.StopReason == "" {
			w.stats.StopReason = ReasonRequested
		}
		reason := w.stats.StopReason
		w.statsMu.Unlock()

		telemetry.WorkerRunning.WithLabelValues(w.Name()).Set(0)
		telemetry.WorkerStops.WithLabelValues(w.Name(), reason).Inc()
		w.logger.Info("worker stopped", "reason", reason)
		w.emit(Event{Type: EventStopped, Reason: reason})
	}()

	w.emit(Event{Type: EventStarted})

	if p, ok := w.feature.(Primer); ok {
		err := w.callWithToken(ctx, func(token string) error {
			return p.Prime(ctx, token)
		})
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("prime failed", "error", err)
				w.setStopReason(ReasonPrimeFailed)
				w.recordFailure(err)
			}
			return
		}
	}

	for ctx.Err() == nil {
		if !w.iterate(ctx) {
			return
		}
	}
}

// iterate обрабатывает один элемент. false — цикл должен завершиться.
// Паника внутри итерации учитывается как обычная ошибка элемента.
func (w *Worker[T]) iterate(ctx context.Context) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in worker loop",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			if w.recordFailure(fmt.Errorf("panic: %v", r)) {
				cont = false
				return
			}
			cont = w.sleep(ctx, w.opts.IdleDelay)
		}
	}()

	item, err := w.feature.Claim(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.logger.Error("claim failed", "error", err)
		if w.recordFailure(err) {
			return false
		}
		return w.sleep(ctx, w.opts.IdleDelay)
	}
	if item == nil {
		if w.opts.StopWhenDrained {
			w.logger.Info("queue drained")
			w.setStopReason(ReasonDrained)
			return false
		}
		return w.sleep(ctx, w.opts.IdleDelay)
	}

	key := w.feature.Key(item)
	logger := telemetry.WithItem(w.logger, key)
	logger.Debug("processing item", "attempts", w.feature.Attempts(item))

	err = w.callWithToken(ctx, func(token string) error {
		return w.feature.Prepare(ctx, token, item)
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrSkipItem):
		logger.Info("item skipped", "reason", err)
		telemetry.WorkerItems.WithLabelValues(w.Name(), telemetry.OutcomeSkipped).Inc()
		w.emit(Event{Type: EventItem, Key: key, Outcome: telemetry.OutcomeSkipped})
		return w.sleep(ctx, w.recommendedDelay())
	case errors.Is(err, ErrNoTemplates):
		logger.Error("no active templates, stopping worker")
		w.setStopReason(ReasonNoTemplates)
		w.recordFailure(err)
		return false
	case ctx.Err() != nil:
		return false
	default:
		return w.handleFailure(ctx, logger, item, key, err)
	}

	if !w.sleep(ctx, w.opts.BroadcastDelay.Random()) {
		return false
	}

	err = w.callWithToken(ctx, func(token string) error {
		return w.feature.Execute(ctx, token, item)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Остановка во время вызова: элемент остаётся pending.
			return false
		}
		return w.handleFailure(ctx, logger, item, key, err)
	}

	// Вызов уже выполнен: результат записывается и при остановке.
	// Незаписанный успех оставил бы элемент pending, и следующий claim
	// повторил бы вызов, поэтому цикл останавливается.
	if err := w.feature.Succeeded(context.WithoutCancel(ctx), item); err != nil {
		logger.Error("failed to record success, stopping worker", "error", err, "critical", true)
		w.setStopReason(ReasonPersistFailed)
		w.recordFailure(fmt.Errorf("record success: %w", err))
		telemetry.WorkerItems.WithLabelValues(w.Name(), telemetry.OutcomeCritical).Inc()
		w.emit(Event{Type: EventItem, Key: key, Outcome: telemetry.OutcomeCritical, Error: err.Error()})
		return false
	}
	w.recordSuccess()
	logger.Info("item processed")
	telemetry.WorkerItems.WithLabelValues(w.Name(), telemetry.OutcomeSuccess).Inc()
	w.emit(Event{Type: EventItem, Key: key, Outcome: telemetry.OutcomeSuccess})

	if w.opts.SuccessDelay.Max > 0 {
		return w.sleep(ctx, w.opts.SuccessDelay.Random())
	}
	return w.sleep(ctx, w.recommendedDelay())
}

// handleFailure классифицирует ошибку элемента. false — цикл должен завершиться.
func (w *Worker[T]) handleFailure(ctx context.Context, logger *slog.Logger, item *T, key string, cause error) bool {
	errText := httpclient.ErrorText(cause)

	if httpclient.IsCritical(cause) {
		logger.Error("critical API error, stopping worker", "error", errText, "critical", true)
		w.setStopReason(ReasonCritical)
		w.fail(ctx, logger, item, cause, true)
		w.recordFailure(cause)
		telemetry.WorkerItems.WithLabelValues(w.Name(), telemetry.OutcomeCritical).Inc()
		w.emit(Event{Type: EventItem, Key: key, Outcome: telemetry.OutcomeCritical, Error: errText})
		return false
	}

	if h, ok := w.feature.(Halter); ok && h.Halt(cause) {
		logger.Warn("feature limit reached, stopping worker", "error", errText)
		w.setStopReason(ReasonHalted)
		w.fail(ctx, logger, item, cause, false)
		w.recordHalt(cause)
		telemetry.WorkerItems.WithLabelValues(w.Name(), telemetry.OutcomeRetry).Inc()
		w.emit(Event{Type: EventItem, Key: key, Outcome: telemetry.OutcomeRetry, Error: errText})
		return false
	}

	attempts := w.feature.Attempts(item) + 1
	permanent := httpclient.IsNonRetryable(cause) ||
		(w.opts.MaxAttempts > 0 && attempts >= w.opts.MaxAttempts)

	outcome := telemetry.OutcomeRetry
	if permanent {
		outcome = telemetry.OutcomeFailed
	}
	logger.Warn("item failed", "error", errText, "attempts", attempts, "permanent", permanent)
	w.fail(ctx, logger, item, cause, permanent)
	telemetry.WorkerItems.WithLabelValues(w.Name(), outcome).Inc()
	w.emit(Event{Type: EventItem, Key: key, Outcome: outcome, Error: errText})

	if w.recordFailure(cause) {
		return false
	}
	return w.sleep(ctx, w.recommendedDelay())
}

func (w *Worker[T]) fail(ctx context.Context, logger *slog.Logger, item *T, cause error, permanent bool) {
	if err := w.feature.Failed(context.WithoutCancel(ctx), item, cause, permanent); err != nil {
		logger.Error("failed to record item failure", "error", err)
	}
}

// callWithToken выполняет fn с текущим токеном. При 401 с просроченным
// токеном обновляет его через Authenticator и повторяет fn ровно один раз.
func (w *Worker[T]) callWithToken(ctx context.Context, fn func(token string) error) error {
	w.mu.Lock()
	token, auth := w.token, w.auth
	w.mu.Unlock()

	err := fn(token)
	if err == nil || !httpclient.IsExpiredToken(err) || auth == nil {
		return err
	}

	w.logger.Info("access token expired, refreshing")
	newToken, refreshErr := auth.Refresh(ctx)
	if refreshErr != nil {
		w.logger.Error("token refresh failed", "error", refreshErr)
		return fmt.Errorf("%w (token refresh failed: %v)", err, refreshErr)
	}

	w.mu.Lock()
	w.token = newToken
	w.mu.Unlock()

	return fn(newToken)
}

// sleep ждёт d или остановки. false — пришёл сигнал остановки.
func (w *Worker[T]) sleep(ctx context.Context, d time.Duration) bool {
	return httpclient.SleepContext(ctx, d) == nil
}

func (w *Worker[T]) recommendedDelay() time.Duration {
	if w.pacer == nil {
		return 0
	}
	return w.pacer.RecommendedDelay()
}

// recordSuccess увеличивает processed и сбрасывает серию ошибок.
func (w *Worker[T]) recordSuccess() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.Processed++
	w.stats.ConsecutiveFailures = 0
}

// recordFailure учитывает ошибку. true — сработал breaker.
func (w *Worker[T]) recordFailure(err error) bool {
	w.statsMu.Lock()
	w.stats.Errors++
	w.stats.ConsecutiveFailures++
	w.stats.LastError = httpclient.ErrorText(err)
	tripped := w.stats.ConsecutiveFailures >= w.opts.MaxConsecutiveFailures
	failures := w.stats.ConsecutiveFailures
	if tripped && w.stats.StopReason == "" {
		w.stats.StopReason = ReasonBreaker
	}
	w.statsMu.Unlock()

	if tripped {
		w.logger.Error("too many consecutive failures, stopping worker",
			"consecutive_failures", failures,
			"critical", true,
		)
	}
	return tripped
}

// recordHalt учитывает ошибку лимита фичи: серия ошибок сбрасывается,
// элемент остаётся pending до следующего запуска.
func (w *Worker[T]) recordHalt(err error) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.Errors++
	w.stats.ConsecutiveFailures = 0
	w.stats.LastError = httpclient.ErrorText(err)
}

func (w *Worker[T]) setState(s State) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.State = s
}

// setStopReason запоминает первую причину остановки.
func (w *Worker[T]) setStopReason(reason string) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	if w.stats.StopReason == "" {
		w.stats.StopReason = reason
	}
}

func (w *Worker[T]) emit(e Event) {
	if w.events == nil {
		return
	}
	e.Feature = w.Name()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Контекст горутины может быть уже отменён, а событие stopped нужно доставить.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.events.PublishWorkerEvent(ctx, e); err != nil {
		w.logger.Debug("publish worker event failed", "event", e.Type, "error", err)
	}
}
