package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/voss/testflow/internal/config"
	"github.com/voss/testflow/internal/domain"
	"github.com/voss/testflow/internal/store"
)

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live session board (refreshes from the store)",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(config.GetPaths().Data)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			m := newWatchModel(st, interval)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval")
	return cmd
}

var watchBorder = lipgloss.NewStyle().
	BorderStyle(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240"))

type watchTickMsg time.Time

type sessionsMsg struct {
	sessions []domain.SessionWithCases
	err      error
}

type watchModel struct {
	store    *store.Store
	interval time.Duration
	table    table.Model
	err      error
}

func newWatchModel(st *store.Store, interval time.Duration) watchModel {
	columns := []table.Column{
		{Title: "Session", Width: 17},
		{Title: "Status", Width: 12},
		{Title: "Cases", Width: 6},
		{Title: "Pending", Width: 8},
		{Title: "URL", Width: 40},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderBottom(true)
	styles.Selected = styles.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(styles)

	return watchModel{store: st, interval: interval, table: t}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.loadSessions, m.tick())
}

func (m watchModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) loadSessions() tea.Msg {
	sessions, err := m.store.ListSessions(context.Background())
	return sessionsMsg{sessions: sessions, err: err}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case watchTickMsg:
		return m, tea.Batch(m.loadSessions, m.tick())

	case sessionsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		rows := make([]table.Row, 0, len(msg.sessions))
		for _, sess := range msg.sessions {
			pending := 0
			for _, tc := range sess.TestCases {
				if tc.Status == domain.CasePending {
					pending++
				}
			}
			rows = append(rows, table.Row{
				sess.SessionID,
				string(sess.Status),
				fmt.Sprintf("%d", len(sess.TestCases)),
				fmt.Sprintf("%d", pending),
				sess.URL,
			})
		}
		m.table.SetRows(rows)
		return m, nil

	case tea.WindowSizeMsg:
		m.table.SetHeight(msg.Height - 4)
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m watchModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("error: %v\n\npress q to quit", m.err)
	}
	return watchBorder.Render(m.table.View()) + "\n  q: quit\n"
}
