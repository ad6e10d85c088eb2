package main

import (
	"fmt"
	"strings"
	"time"

	"debtflow/internal/calc"
	"debtflow/internal/money"

	"github.com/spf13/cobra"
)

var (
	calcMode              string
	calcAmount            string
	calcCount             int
	calcInstallmentAmount string
	calcTotalInstallments int
	calcPaid              int
	calcSplit             bool

	dueDay      int
	duePolicy   string
	dueFrom     string
	dueInterval string
	dueCount    int
)

// calcCmd groups the offline calculators used by the wizard.
var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Installment and due-date calculators",
}

var calcInstallmentsCmd = &cobra.Command{
	Use:   "installments",
	Short: "Derive total, installment count and per-installment amount",
	Long: `Derives the consistent trio the wizard submits.

Examples:
  debtflow calc installments --amount 1200 --count 12
  debtflow calc installments --mode per-installment --installment-amount 150 --count 10
  debtflow calc installments --mode per-installment --installment-amount 150 --total-installments 12 --paid 4`,
	RunE: runCalcInstallments,
}

var calcNextDueCmd = &cobra.Command{
	Use:   "next-due",
	Short: "Show the next due dates for a recurring movement",
	Long: `Computes the first due date on or after --from for --day, then lists
--count occurrences at --interval.

Examples:
  debtflow calc next-due --day 31 --from 2025-02-10
  debtflow calc next-due --day 31 --from 2025-02-10 --policy overflow --count 4`,
	RunE: runCalcNextDue,
}

func init() {
	calcInstallmentsCmd.Flags().StringVar(&calcMode, "mode", string(calc.ModeTotal), "Amount you know: total or per-installment")
	calcInstallmentsCmd.Flags().StringVar(&calcAmount, "amount", "", "Total amount (total mode)")
	calcInstallmentsCmd.Flags().IntVar(&calcCount, "count", 1, "Number of installments")
	calcInstallmentsCmd.Flags().StringVar(&calcInstallmentAmount, "installment-amount", "", "Per-installment amount (per-installment mode)")
	calcInstallmentsCmd.Flags().IntVar(&calcTotalInstallments, "total-installments", 0, "Total installments of a debt already in progress")
	calcInstallmentsCmd.Flags().IntVar(&calcPaid, "paid", 0, "Installments already paid")
	calcInstallmentsCmd.Flags().BoolVar(&calcSplit, "split", false, "List each installment with cent-exact rounding")

	calcNextDueCmd.Flags().IntVar(&dueDay, "day", 1, "Day of month (1-31)")
	calcNextDueCmd.Flags().StringVar(&duePolicy, "policy", "", "Month-end policy: clamp or overflow (default from config)")
	calcNextDueCmd.Flags().StringVar(&dueFrom, "from", "", "Reference date YYYY-MM-DD (default: today)")
	calcNextDueCmd.Flags().StringVar(&dueInterval, "interval", string(calc.Monthly), "MONTHLY, WEEKLY or BIWEEKLY")
	calcNextDueCmd.Flags().IntVar(&dueCount, "count", 1, "Number of occurrences to list")

	calcCmd.AddCommand(calcInstallmentsCmd)
	calcCmd.AddCommand(calcNextDueCmd)
}

func runCalcInstallments(cmd *cobra.Command, args []string) error {
	in := calc.Input{
		Mode:              calc.Mode(strings.ToLower(calcMode)),
		Installments:      calcCount,
		InProgress:        calcTotalInstallments > 0,
		TotalInstallments: calcTotalInstallments,
		PaidInstallments:  calcPaid,
	}

	switch in.Mode {
	case calc.ModeTotal:
		amount, err := money.Parse(calcAmount)
		if err != nil {
			return fmt.Errorf("--amount: %w", err)
		}
		in.TotalAmount = amount
		in.InProgress = false
	case calc.ModePerInstallment:
		amount, err := money.Parse(calcInstallmentAmount)
		if err != nil {
			return fmt.Errorf("--installment-amount: %w", err)
		}
		in.InstallmentAmount = amount
	}

	out, err := calc.Installments(in)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Total:        %s\n", money.Format(out.TotalAmount))
	fmt.Fprintf(w, "Installments: %d\n", out.Installments)
	fmt.Fprintf(w, "Each:         %s\n", money.Format(out.InstallmentAmount))
	if in.InProgress {
		fmt.Fprintf(w, "Remaining:    %d of %d\n", out.Remaining, in.TotalInstallments)
	}
	if calcSplit {
		for i, part := range calc.Split(out.TotalAmount, out.Installments) {
			fmt.Fprintf(w, "  %3d. %s\n", i+1, money.Format(part))
		}
	}
	return nil
}

func runCalcNextDue(cmd *cobra.Command, args []string) error {
	policy, err := resolvePolicy(duePolicy)
	if err != nil {
		return err
	}

	now := time.Now()
	if dueFrom != "" {
		now, err = time.ParseInLocation("2006-01-02", dueFrom, time.Local)
		if err != nil {
			return fmt.Errorf("--from: expected YYYY-MM-DD: %w", err)
		}
	}

	interval := calc.Interval(strings.ToUpper(dueInterval))
	if !interval.Valid() {
		return fmt.Errorf("%w: %q", calc.ErrUnknownInterval, dueInterval)
	}

	dates, err := dueDates(interval, dueDay, now, max(dueCount, 1), policy)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, d := range dates {
		fmt.Fprintln(w, d.Format("2006-01-02 (Mon)"))
	}
	return nil
}

// dueDates lists count due dates starting at the first one on or after from.
// Monthly dates keep dayOfMonth in every month, so a day-31 schedule clamped
// to February returns to the 31st in March.
func dueDates(interval calc.Interval, dayOfMonth int, from time.Time, count int, policy calc.MonthEndPolicy) ([]time.Time, error) {
	first, err := calc.NextDueDate(dayOfMonth, from, policy)
	if err != nil {
		return nil, err
	}
	if interval != calc.Monthly {
		return calc.Occurrences(interval, first, count, policy)
	}

	out := []time.Time{first}
	for len(out) < count {
		next, err := calc.NextDueDate(dayOfMonth, out[len(out)-1].AddDate(0, 0, 1), policy)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	return out, nil
}

// resolvePolicy prefers the flag, then the loaded config.
func resolvePolicy(flag string) (calc.MonthEndPolicy, error) {
	if flag == "" && cfg != nil {
		return cfg.MonthEndPolicy(), nil
	}
	return calc.ParsePolicy(flag)
}
