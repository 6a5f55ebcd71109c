// Outpost CLI — инструмент командной строки для executor'а Outpost.
//
// Использование:
//
//	outpost [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	task      Отправка и просмотр tasks
//	key       Кодирование и разбор ключей tasks
//	endpoint  URL execution API
//	history   Журнал завершённых tasks
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Outpost/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "outpost",
		Short:         "Outpost CLI — remote task execution for workflow schedulers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultURL := "http://localhost:8090"
	if v := os.Getenv("OUTPOST_API_URL"); v != "" {
		defaultURL = v
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "Executor API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewKeyCmd(outputFn),
		cli.NewEndpointCmd(clientFn, outputFn),
		cli.NewHistoryCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
