package main

import (
	"fmt"

	"debtflow/cmd/debtflow/ui"
	"debtflow/internal/logging"
	"debtflow/internal/submit"
	"debtflow/internal/wizard"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var draftRaw bool

// draftCmd inspects the stored draft without opening the wizard.
var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Inspect or discard the unfinished movement",
}

var draftShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored draft",
	RunE:  runDraftShow,
}

var draftDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Delete the stored draft and any pending gateway authorization",
	RunE:  runDraftDiscard,
}

func init() {
	draftShowCmd.Flags().BoolVar(&draftRaw, "raw", false, "Print markdown instead of rendering it")
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftDiscardCmd)
}

func runDraftShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	w := cmd.OutOrStdout()
	restored := a.persist.Restore(ctx)
	if !restored.OK {
		fmt.Fprintln(w, "No unfinished movement.")
		return nil
	}

	summary := ui.Summary{
		State: restored.State,
		Me:    submit.Party{Email: cfg.API.UserEmail, Name: cfg.API.UserName},
	}
	if wallets, err := a.client.ListWallets(ctx); err == nil {
		summary.Wallets = wallets
	} else {
		logger.Debug("wallet names unavailable", zap.Error(err))
	}
	if id := restored.State.PixKeyID(); id != "" {
		if keys, err := a.client.ListPixKeys(ctx, restored.State.Selections.WalletID); err == nil {
			summary.PixKeys = keys
		}
	}

	md := summary.Markdown()
	if !restored.SavedAt.IsZero() {
		md += fmt.Sprintf("\n_Saved %s, step %d of %d._\n", restored.SavedAt.Local().Format("2006-01-02 15:04"), restored.State.Step+1, wizard.StepCount)
	}
	if draftRaw {
		fmt.Fprint(w, md)
		return nil
	}
	out, err := ui.Render(md, 80)
	if err != nil {
		logger.Debug("markdown rendering failed", zap.Error(err))
	}
	fmt.Fprint(w, out)
	return nil
}

func runDraftDiscard(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(timeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.persist.Discard(ctx)
	if err := a.recovery.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear gateway recovery record: %w", err)
	}
	logging.AuditWithSession("").Event(logging.AuditDraftDiscarded, "draft discarded from the command line", nil)
	fmt.Fprintln(cmd.OutOrStdout(), "Draft discarded.")
	return nil
}
