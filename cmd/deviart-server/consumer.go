package main

import (
	"context"
	"errors"
	"log/slog"
)

// commandConsumer — потребитель очереди команд. Start блокируется до отмены ctx.
type commandConsumer interface {
	Start(ctx context.Context) error
}

// startConsumer запускает потребителя в отдельной горутине и сразу
// возвращается. Канал закрывается, когда Start завершился; остановка по
// отмене ctx ошибкой не считается.
func startConsumer(ctx context.Context, c commandConsumer, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("control consumer error", "error", err)
		}
	}()
	return done
}
