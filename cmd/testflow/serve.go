package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voss/testflow/internal/agent"
	"github.com/voss/testflow/internal/config"
	"github.com/voss/testflow/internal/exec"
	"github.com/voss/testflow/internal/orchestrator"
	"github.com/voss/testflow/internal/report"
	"github.com/voss/testflow/internal/server"
	"github.com/voss/testflow/internal/store"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the test automation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := config.Get()
			paths := config.GetPaths()
			if addr != "" {
				env.ListenAddr = addr
			}

			st, err := store.New(paths.Data)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			runner := exec.NewOSRunner()
			rep, err := report.New(paths.AllureResults, paths.AllureReports, env.AllureCmd, runner)
			if err != nil {
				return fmt.Errorf("init reporter: %w", err)
			}

			ag := agent.NewCLIAgent(env.AgentCmd, env.CallbackURL, runner)
			orch := orchestrator.New(st, ag, rep)
			if env.Preflight {
				orch.Probe = agent.NewBrowserProbe()
			}

			srv := server.New(orch, st, rep, env.ListenAddr)
			if err := srv.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "server: %v\n", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides TESTFLOW_ADDR)")
	return cmd
}
