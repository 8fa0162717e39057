package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkerCmd создаёт группу команд для управления воркерами фич.
func NewWorkerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage feature workers (comments, fave, broadcast, stats)",
	}

	cmd.AddCommand(
		newWorkerListCmd(clientFn, outputFn),
		newWorkerStartCmd(clientFn, outputFn),
		newWorkerStopCmd(clientFn, outputFn),
		newWorkerStatusCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkerListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			statuses, err := client.ListWorkers()
			if err != nil {
				return err
			}

			headers := []string{"FEATURE", "RUNNING", "STATE", "PROCESSED", "ERRORS", "LAST_ERROR"}
			rows := make([][]string, len(statuses))
			for i, s := range statuses {
				rows[i] = []string{
					s.Feature,
					strconv.FormatBool(s.Running),
					s.State,
					strconv.Itoa(s.Processed),
					strconv.Itoa(s.Errors),
					s.LastError,
				}
			}

			out.Print(headers, rows, statuses)
			return nil
		},
	}
}

func newWorkerStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req StartWorkerRequest

	cmd := &cobra.Command{
		Use:   "start FEATURE",
		Short: "Start a feature worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().StartWorker(args[0], req)
			if err != nil {
				return err
			}
			outputFn().Success(resp.Message)
			return nil
		},
	}

	cmd.Flags().Int64Var(&req.TemplateID, "template-id", 0, "Use a single template (comments)")
	cmd.Flags().StringVar(&req.Username, "username", "", "Gallery owner (stats)")

	return cmd
}

func newWorkerStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop FEATURE",
		Short: "Stop a feature worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := clientFn().StopWorker(args[0])
			if err != nil {
				return err
			}
			outputFn().Success(resp.Message)
			return nil
		},
	}
}

func newWorkerStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status FEATURE",
		Short: "Show worker status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := clientFn().WorkerStatus(args[0])
			if err != nil {
				return err
			}

			fields := map[string]any{
				"feature":              st.Feature,
				"running":              st.Running,
				"state":                st.State,
				"processed":            st.Processed,
				"errors":               st.Errors,
				"consecutive_failures": st.ConsecutiveFailures,
				"last_error":           st.LastError,
			}
			if st.StopReason != "" {
				fields["stop_reason"] = st.StopReason
			}
			for k, v := range st.Extra {
				fields[k] = v
			}

			outputFn().Fields(fields, st)
			return nil
		},
	}
}
