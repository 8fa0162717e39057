package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewQueueCmd создаёт группу команд для администрирования очередей.
func NewQueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain work queues",
	}

	cmd.AddCommand(
		newQueueListCmd(clientFn, outputFn),
		newQueueStatsCmd(clientFn, outputFn),
		newQueueClearCmd(clientFn, outputFn),
		newQueueResetCmd(clientFn, outputFn),
		newQueueRemoveCmd(clientFn, outputFn),
		newQueueAddCmd(clientFn, outputFn),
		newQueueRetryCmd(clientFn, outputFn),
	)

	return cmd
}

// queueColumns — колонки таблицы элементов очереди по фичам.
var queueColumns = map[string][]string{
	"comments":  {"deviationid", "author_username", "source", "status", "attempts", "last_error"},
	"fave":      {"deviationid", "ts", "status", "attempts", "last_error"},
	"broadcast": {"queue_id", "message_id", "recipient_username", "priority", "status", "attempts", "last_error"},
}

func newQueueListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOpts

	cmd := &cobra.Command{
		Use:   "list FEATURE",
		Short: "List queue items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := clientFn().ListQueue(args[0], opts)
			if err != nil {
				return err
			}

			columns, ok := queueColumns[args[0]]
			if !ok {
				columns = []string{"status", "attempts"}
			}
			outputFn().Print(upper(columns), projectRows(items, columns), items)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (pending, processing, commented, faved, completed, failed)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip the first N results")

	return cmd
}

func newQueueStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FEATURE",
		Short: "Show queue counts by status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().QueueStats(args[0])
			if err != nil {
				return err
			}

			fields := make(map[string]any, len(stats.ByStatus)+1)
			for status, n := range stats.ByStatus {
				fields[status] = n
			}
			fields["total"] = stats.Total

			outputFn().Fields(fields, stats)
			return nil
		},
	}
}

func newQueueClearCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "clear FEATURE",
		Short: "Delete queue items (all, or only those with --status)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := clientFn().ClearQueue(args[0], status)
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Removed %d items", n))
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only clear items with this status")

	return cmd
}

func newQueueResetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-failed FEATURE",
		Short: "Move failed items back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := clientFn().ResetFailed(args[0])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Reset %d failed items", n))
			return nil
		},
	}
}

func newQueueRemoveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "remove FEATURE KEY...",
		Short: "Remove items by deviation id (comments, fave) or queue id (broadcast)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := clientFn().RemoveFromQueue(args[0], args[1:])
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Removed %d items", n))
			return nil
		},
	}
}

func newQueueAddCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var recipients []string

	cmd := &cobra.Command{
		Use:   "add MESSAGE_ID",
		Short: "Queue broadcast recipients (saved watchers if none given)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			messageID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid message id %q", args[0])
			}
			parsed, err := parseRecipients(recipients)
			if err != nil {
				return err
			}

			resp, err := clientFn().EnqueueBroadcast(messageID, parsed)
			if err != nil {
				return err
			}
			outputFn().Success(resp.Message)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&recipients, "recipient", nil, "Recipient as USERNAME:USERID (repeatable)")

	return cmd
}

func newQueueRetryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Requeue failed broadcast recipients with raised priority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := clientFn().RetryFailedBroadcast()
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Requeued %d recipients", n))
			return nil
		},
	}
}

func parseRecipients(values []string) ([]Recipient, error) {
	recipients := make([]Recipient, 0, len(values))
	for _, v := range values {
		username, userID, ok := strings.Cut(v, ":")
		if !ok || username == "" || userID == "" {
			return nil, fmt.Errorf("invalid recipient %q, expected USERNAME:USERID", v)
		}
		recipients = append(recipients, Recipient{Username: username, UserID: userID})
	}
	return recipients, nil
}

// projectRows выбирает из объектов значения колонок в порядке columns.
func projectRows(items []map[string]any, columns []string) [][]string {
	rows := make([][]string, len(items))
	for i, item := range items {
		row := make([]string, len(columns))
		for j, col := range columns {
			row[j] = formatValue(item[col])
		}
		rows[i] = row
	}
	return rows
}

func upper(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = strings.ToUpper(c)
	}
	return out
}
