package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewLogCmd создаёт группу команд для журналов отправки.
func NewLogCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show send logs (comments, broadcast)",
	}

	cmd.AddCommand(
		newLogListCmd(clientFn, outputFn),
		newLogStatsCmd(clientFn, outputFn),
	)

	return cmd
}

var logColumns = map[string][]string{
	"comments":  {"log_id", "deviationid", "author_username", "status", "commentid", "error_message", "sent_at"},
	"broadcast": {"log_id", "message_id", "recipient_username", "status", "commentid", "error_message", "sent_at"},
}

func newLogListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListOpts

	cmd := &cobra.Command{
		Use:   "list FEATURE",
		Short: "List log entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := clientFn().ListLogs(args[0], opts)
			if err != nil {
				return err
			}

			columns, ok := logColumns[args[0]]
			if !ok {
				columns = []string{"log_id", "status", "sent_at"}
			}
			outputFn().Print(upper(columns), projectRows(logs, columns), logs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (sent, failed, deleted)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Skip the first N results")

	return cmd
}

func newLogStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats FEATURE",
		Short: "Show log totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := clientFn().LogStats(args[0])
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"SENT", "FAILED", "DELETED", "TOTAL"},
				[][]string{{
					strconv.Itoa(stats.Sent),
					strconv.Itoa(stats.Failed),
					strconv.Itoa(stats.Deleted),
					strconv.Itoa(stats.Total),
				}},
				stats,
			)
			return nil
		},
	}
}

// NewAuthCmd создаёт группу команд авторизации.
func NewAuthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "DeviantArt account authorization",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the account is authorized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := clientFn().AuthStatus()
			if err != nil {
				return err
			}
			outputFn().Print(
				[]string{"AUTHENTICATED", "EXPIRED", "EXPIRES_AT"},
				[][]string{{strconv.FormatBool(st.Authenticated), strconv.FormatBool(st.Expired), st.ExpiresAt}},
				st,
			)
			return nil
		},
	})

	return cmd
}
