package main

import (
	"errors"
	"fmt"

	"debtflow/cmd/debtflow/ui"
	"debtflow/internal/submit"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var darkMode bool

// newCmd opens the interactive wizard.
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a movement with the interactive wizard",
	Long: `Opens the movement wizard. An unfinished draft is picked up where you left
it, and a pending gateway authorization is reconciled before the first screen.`,
	RunE: runNew,
}

func init() {
	newCmd.Flags().BoolVar(&darkMode, "dark", false, "Force the dark theme")
}

func runNew(cmd *cobra.Command, args []string) error {
	if cfg.API.UserEmail == "" {
		return errors.New("set api.user_email in the config (or DEBTFLOW_USER_EMAIL) before creating movements")
	}

	ctx, cancel := signalContext(0)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.watchConfig(ctx, resolvedConfigPath())
	if err := a.listen(); err != nil {
		logger.Warn("gateway callback server unavailable", zap.Error(err))
	}

	notes := ui.NewNotifications(16)
	ctrl, err := a.controller(notes)
	if err != nil {
		return err
	}

	opened, err := ctrl.Open(ctx)
	if err != nil {
		return err
	}
	defer ctrl.Close()
	if opened.LoadErr != nil {
		logger.Warn("wallets or PIX keys failed to load", zap.Error(opened.LoadErr))
	}

	styles := ui.DefaultStyles()
	if darkMode {
		styles = ui.NewStyles(ui.DarkTheme())
	}
	me := submit.Party{Email: cfg.API.UserEmail, Name: cfg.API.UserName}

	p := tea.NewProgram(ui.NewModel(ctx, ctrl, notes, me, styles), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("wizard: %w", err)
	}
	return nil
}
