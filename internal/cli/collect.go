package cli

import (
	"github.com/spf13/cobra"
)

// NewCollectCmd создаёт группу разовых действий: сбор лент, watchers, статистики.
func NewCollectCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one-shot collectors",
	}

	cmd.AddCommand(
		newCollectCommentsCmd(clientFn, outputFn),
		newCollectFaveCmd(clientFn, outputFn),
		newCollectWatchersCmd(clientFn, outputFn),
		newCollectStatsCmd(clientFn, outputFn),
	)

	return cmd
}

func newCollectCommentsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var source string
	var maxPages int

	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Collect deviations into the comment queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().CollectComments(source, maxPages)
			if err != nil {
				return err
			}
			printAction(outputFn(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "watch", "Feed to collect from (watch, global)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Page limit (server default if 0)")

	return cmd
}

func newCollectFaveCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var maxPages int

	cmd := &cobra.Command{
		Use:   "fave",
		Short: "Collect the watch feed into the fave queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().CollectFeed(maxPages)
			if err != nil {
				return err
			}
			printAction(outputFn(), resp)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "Page limit (server default if 0)")

	return cmd
}

func newCollectWatchersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var username string
	var maxWatchers int

	cmd := &cobra.Command{
		Use:   "watchers",
		Short: "Refresh the saved watcher list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().FetchWatchers(username, maxWatchers)
			if err != nil {
				return err
			}
			printAction(outputFn(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Account whose watchers to fetch")
	cmd.Flags().IntVar(&maxWatchers, "max-watchers", 0, "Watcher limit (server default if 0)")

	return cmd
}

func newCollectStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Sync gallery statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().SyncStats(username)
			if err != nil {
				return err
			}
			printAction(outputFn(), resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Gallery owner (configured account if empty)")

	return cmd
}

// printAction выводит сообщение действия и, если есть, его результат.
func printAction(out *Output, resp *ActionResponse) {
	out.Success(resp.Message)
	if len(resp.Data) > 0 && string(resp.Data) != "null" {
		out.JSON(resp.Data)
	}
}
