// Package worker — общее ядро фоновых воркеров фич.
//
// # Обзор
//
// Каждая фича (comments, fave, broadcast, stats) запускает одну долгоживущую
// горутину, которая берёт элементы из своей очереди, вызывает внешнее API и
// классифицирует ошибки. Жизненный цикл, паузы, breaker и обновление токена
// одинаковы для всех фич и живут здесь; фича описывает только свою работу
// через интерфейс Feature[T].
//
// # Жизненный цикл
//
//	stopped → starting → running → stopping → stopped
//
// Переходы:
//
//   - Start возвращает ErrAlreadyRunning, если горутина жива (проверка по
//     каналу done, а не по флагу), затем вызывает Feature.Validate,
//     сбрасывает счётчики и запускает горутину на BaseContext.
//   - Stop отменяет контекст горутины и ждёт её не дольше StopTimeout.
//     Не дождавшись, отвечает "stop requested".
//   - Status сверяет running с живостью горутины под тем же мьютексом,
//     что и чтение счётчиков.
//
// Все паузы внутри цикла (idle, broadcast delay, recommended delay)
// прерываются отменой контекста, поэтому Stop укладывается в таймаут.
//
// # Цикл
//
//	for ctx not done:
//	    item := Claim()                   // nil → idle или выход (StopWhenDrained)
//	    Prepare(token, item)              // ErrNoTemplates → выход, ErrSkipItem → дальше
//	    sleep(BroadcastDelay.Random())
//	    Execute(token, item)
//	    успех  → Succeeded, processed++, consecutive = 0
//	    ошибка → classify
//	    sleep(Pacer.RecommendedDelay())
//
// Классификация ошибки элемента:
//
//   - критическая (spam, ban, suspended, abuse, violation) — элемент failed,
//     цикл завершается независимо от счётчиков;
//   - Halter фичи сработал — попытка учтена, цикл завершается;
//   - 4xx кроме 429 или исчерпан MaxAttempts — элемент failed;
//   - иначе — bump попытки, элемент остаётся pending.
//
// После MaxConsecutiveFailures ошибок подряд цикл завершается (breaker).
// Паника внутри итерации учитывается как ошибка, цикл продолжается.
//
// # Токен
//
// 401 с invalid_token или "expired" в описании приводит к одному вызову
// Authenticator.Refresh и одному повтору с новым токеном. Если обновление
// не удалось, исходная 401 считается окончательной ошибкой элемента.
package worker
