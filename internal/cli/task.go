package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewTaskCmd создаёт группу команд для управления tasks.
func NewTaskCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage dispatched tasks",
	}

	cmd.AddCommand(
		newTaskListCmd(clientFn, outputFn),
		newTaskSubmitCmd(clientFn, outputFn),
		newTaskShowCmd(clientFn, outputFn),
		newTaskSyncCmd(clientFn, outputFn),
	)

	return cmd
}

func newTaskListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List in-flight tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks()
			if err != nil {
				return err
			}

			headers := []string{"TASK_KEY", "WORKFLOW", "STEP", "RUN", "ATTEMPT", "SUBMITTED"}
			rows := make([][]string, len(tasks))
			for i, t := range tasks {
				rows[i] = []string{t.TaskKey, t.WorkflowID, t.StepID, t.RunID, strconv.Itoa(t.Attempt), t.SubmittedAt}
			}

			out.Print(headers, rows, tasks)
			return nil
		},
	}
}

func newTaskSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var attempt int
	var workloadFile string
	var env []string

	cmd := &cobra.Command{
		Use:   "submit WORKFLOW STEP RUN [-- COMMAND...]",
		Short: "Dispatch a task to a remote worker",
		Long: `Dispatch a task. The unit of work is either the command after "--"
or a JSON workload read from --workload (use "-" for stdin).`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := SubmitTaskRequest{
				WorkflowID: args[0],
				StepID:     args[1],
				RunID:      args[2],
				Attempt:    attempt,
				Command:    args[3:],
			}

			if workloadFile != "" {
				data, err := readInput(cmd, workloadFile)
				if err != nil {
					return err
				}
				if !json.Valid(data) {
					return fmt.Errorf("workload in %s is not valid JSON", workloadFile)
				}
				req.Workload = data
			}

			if len(env) > 0 {
				req.Env = make(map[string]string, len(env))
				for _, kv := range env {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 || parts[0] == "" {
						return fmt.Errorf("invalid env format %q, expected KEY=VALUE", kv)
					}
					req.Env[parts[0]] = parts[1]
				}
			}

			task, err := client.SubmitTask(req)
			if err != nil {
				return err
			}

			if task.InFlight {
				out.Success(fmt.Sprintf("Task dispatched: %s", task.TaskKey))
			} else {
				out.Error(fmt.Sprintf("Task %s failed to spawn and was reported as FAILED", task.TaskKey))
			}
			out.Print(
				[]string{"TASK_KEY", "IN_FLIGHT", "SUBMITTED"},
				[][]string{{task.TaskKey, strconv.FormatBool(task.InFlight), task.SubmittedAt}},
				task,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&attempt, "attempt", 1, "Attempt number (1-based)")
	cmd.Flags().StringVar(&workloadFile, "workload", "", "Path to JSON workload file ('-' for stdin)")
	cmd.Flags().StringSliceVar(&env, "env", nil, "Extra environment as KEY=VALUE (repeatable)")

	return cmd
}

func newTaskShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_KEY",
		Short: "Show task state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			task, err := client.GetTask(args[0])
			if err != nil {
				return err
			}

			fields := []Field{
				{"TASK_KEY", task.TaskKey},
				{"IN_FLIGHT", strconv.FormatBool(task.InFlight)},
			}
			if task.SubmittedAt != "" {
				fields = append(fields, Field{"SUBMITTED", task.SubmittedAt})
			}

			if st := task.State; st != nil {
				code := "-"
				if st.ReturnCode != nil {
					code = strconv.Itoa(*st.ReturnCode)
				}
				fields = append(fields,
					Field{"STATUS", st.Status},
					Field{"RETURN_CODE", code},
					Field{"UPDATED", st.UpdatedAt},
				)
				if st.Error != "" {
					fields = append(fields, Field{"ERROR", st.Error})
				}
				if st.StdoutTail != "" {
					fields = append(fields, Field{"STDOUT", st.StdoutTail + "\n"})
				}
				if st.StderrTail != "" {
					fields = append(fields, Field{"STDERR", st.StderrTail + "\n"})
				}
			} else {
				fields = append(fields, Field{"STATUS", "-"})
			}

			out.Detail(fields, task)
			return nil
		},
	}
}

func newTaskSyncCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a reconciliation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			res, err := client.Sync()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"CHECKED", "PENDING", "SUCCEEDED", "FAILED", "STALE", "ERRORS"},
				[][]string{{
					strconv.Itoa(res.Checked),
					strconv.Itoa(res.Pending),
					strconv.Itoa(res.Succeeded),
					strconv.Itoa(res.Failed),
					strconv.Itoa(res.Stale),
					strconv.Itoa(res.Errors),
				}},
				res,
			)
			return nil
		},
	}
}

// readInput читает файл или stdin команды для "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
