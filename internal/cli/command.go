package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Deviart/internal/control"
)

// CommandPublisher — отправка команды в очередь управления (mq.Publisher).
type CommandPublisher interface {
	PublishCommand(ctx context.Context, cmd control.Command) error
}

// PublisherFactory открывает соединение с брокером; release закрывает его.
type PublisherFactory func(ctx context.Context) (pub CommandPublisher, release func(), err error)

// NewSendCmd создаёт команду отправки управляющей команды через RabbitMQ.
// В отличие от остальных команд не требует доступного API: команду
// выполнит deviart-server, когда получит её из control.commands.
func NewSendCmd(publisherFn PublisherFactory, outputFn func() *Output) *cobra.Command {
	var rawArgs []string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send FEATURE ACTION",
		Short: "Publish a control command (start, stop, collect, sync, fetch) to the broker",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := parseKV(rawArgs)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pub, closeFn, err := publisherFn(ctx)
			if err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer closeFn()

			command := control.Command{
				Feature: args[0],
				Action:  control.Action(args[1]),
				Args:    kv,
			}
			if err := pub.PublishCommand(ctx, command); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Command published: %s %s", command.Feature, command.Action))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&rawArgs, "arg", nil, "Command argument as KEY=VALUE (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Broker connect and publish timeout")

	return cmd
}

func parseKV(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, kv := range values {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument format %q, expected KEY=VALUE", kv)
		}
		out[k] = v
	}
	return out, nil
}
