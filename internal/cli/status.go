package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewEndpointCmd показывает endpoint и загрузку executor'а.
func NewEndpointCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Show the execution API endpoint and executor load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ep, err := clientFn().GetEndpoint()
			if err != nil {
				return err
			}

			outputFn().Print(
				[]string{"ENDPOINT", "PARALLELISM", "SLOTS", "IN_FLIGHT"},
				[][]string{{ep.Endpoint, strconv.Itoa(ep.Parallelism), strconv.Itoa(ep.SlotsAvailable), strconv.Itoa(ep.InFlight)}},
				ep,
			)
			return nil
		},
	}
}

// NewHistoryCmd показывает журнал завершённых tasks.
func NewHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently finished tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := clientFn().ListHistory(limit)
			if err != nil {
				return err
			}

			headers := []string{"TASK_KEY", "OUTCOME", "RETURN_CODE", "FINISHED", "ERROR"}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{e.TaskKey, e.Outcome, strconv.Itoa(e.ReturnCode), e.FinishedAt, e.Error}
			}

			outputFn().Print(headers, rows, entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}
