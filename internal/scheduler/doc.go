// Package scheduler по cron-расписанию отправляет команды управления
// в RabbitMQ: сбор ленты для избранного, сбор работ для комментариев
// и синхронизацию статистики галереи.
//
// Сам планировщик ничего не выполняет: команды потребляет deviart-server
// и передаёт их в control.Dispatcher, как и запросы дашборда.
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Jobs:      scheduler.JobsFromConfig(cfg.Scheduler),
//	    Publisher: publisher,
//	    Locker:    scheduler.NewPGLock(pool, scheduler.LockKey),
//	    Logger:    logger,
//	})
//	err = sched.Run(ctx) // до отмены ctx
//
// Leader Election:
//
// Экземпляров может быть несколько; задания публикует только держатель
// pg_try_advisory_lock. Блокировка сессионная, поэтому PGLock держит
// выделенное соединение пула, а не берёт случайное на каждый запрос.
package scheduler
