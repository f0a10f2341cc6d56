package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/voss/testflow/internal/config"
	"github.com/voss/testflow/internal/domain"
	"github.com/voss/testflow/internal/store"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recorded test sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(config.GetPaths().Data)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			sessions, err := st.ListSessions(context.Background())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}

			width := 80
			if term.IsTerminal(int(os.Stdout.Fd())) {
				if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
					width = w
				}
			}

			for _, sess := range sessions {
				printSession(sess, width)
			}
			return nil
		},
	}
}

func printSession(sess domain.SessionWithCases, width int) {
	status := color.YellowString(string(sess.Status))
	if sess.Status == domain.SessionCompleted {
		status = color.GreenString(string(sess.Status))
	}

	url := sess.URL
	if max := width - 40; max > 10 && len(url) > max {
		url = url[:max-3] + "..."
	}

	fmt.Printf("%s  %s  %s\n", color.CyanString(sess.SessionID), status, url)

	passed, failed, other := 0, 0, 0
	for _, tc := range sess.TestCases {
		switch tc.Status {
		case domain.CasePassed, "Pass":
			passed++
		case domain.CaseFailed, "Fail":
			failed++
		default:
			other++
		}
	}
	fmt.Printf("    %d cases: %s %s %s\n",
		len(sess.TestCases),
		color.GreenString("%d passed", passed),
		color.RedString("%d failed", failed),
		color.HiBlackString("%d other", other))
}
