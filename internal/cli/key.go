package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shaiso/Outpost/internal/domain"
)

// NewKeyCmd создаёт команды кодека ключей. Работают локально, без API.
func NewKeyCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Encode and decode task keys",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "encode WORKFLOW STEP RUN ATTEMPT",
			Short: "Build the canonical task key",
			Args:  cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				attempt, err := strconv.Atoi(args[3])
				if err != nil {
					return err
				}
				key, err := domain.NewTaskKey(args[0], args[1], args[2], attempt)
				if err != nil {
					return err
				}
				encoded, err := key.Encode()
				if err != nil {
					return err
				}

				outputFn().Print([]string{"TASK_KEY"}, [][]string{{encoded}}, map[string]string{"task_key": encoded})
				return nil
			},
		},
		&cobra.Command{
			Use:   "decode TASK_KEY",
			Short: "Split a task key into its fields",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := domain.ParseTaskKey(args[0])
				if err != nil {
					return err
				}

				outputFn().Print(
					[]string{"WORKFLOW", "STEP", "RUN", "ATTEMPT"},
					[][]string{{key.WorkflowID, key.StepID, key.RunID, strconv.Itoa(key.Attempt)}},
					map[string]any{
						"workflow_id": key.WorkflowID,
						"step_id":     key.StepID,
						"run_id":      key.RunID,
						"attempt":     key.Attempt,
					},
				)
				return nil
			},
		},
	)

	return cmd
}
