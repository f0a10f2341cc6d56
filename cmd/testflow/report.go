package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/voss/testflow/internal/config"
	"github.com/voss/testflow/internal/exec"
	"github.com/voss/testflow/internal/report"
)

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Render the Allure report from accumulated result records",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := config.Get()
			paths := config.GetPaths()

			rep, err := report.New(paths.AllureResults, paths.AllureReports, env.AllureCmd, exec.NewOSRunner())
			if err != nil {
				return err
			}

			files, err := rep.ListResults()
			if err != nil {
				return err
			}
			fmt.Printf("%d result records in %s\n", len(files), paths.AllureResults)

			if !rep.Generate(context.Background()) {
				return fmt.Errorf("report generation failed (is %q on PATH?)", env.AllureCmd)
			}

			fmt.Println(color.GreenString("Report generated: %s/index.html", paths.AllureReports))
			return nil
		},
	}
}
