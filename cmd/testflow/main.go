// Package main provides the testflow CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "testflow",
		Short: "Automated test session orchestration",
		Long: `testflow tracks the lifecycle of automated test sessions: an external
automation agent generates test cases for a target URL, executes them
sequentially, and verdicts accumulate as Allure report records.

Use 'testflow serve' to start the API, 'testflow sessions' to inspect
recorded sessions, 'testflow watch' for a live board.`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the testflow version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("testflow " + version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
