package ui

import (
	"fmt"
	"strings"

	"debtflow/internal/api"
	"debtflow/internal/calc"
	"debtflow/internal/money"
	"debtflow/internal/submit"
	"debtflow/internal/wizard"

	"github.com/charmbracelet/glamour"
)

// Summary is what the confirmation step shows.
type Summary struct {
	State   wizard.State
	Me      submit.Party
	Wallets []api.Wallet
	PixKeys []api.PixKey
}

// Markdown renders the draft as a markdown table.
func (s Summary) Markdown() string {
	st := s.State
	var b strings.Builder

	title := st.Fields.Description
	if title == "" {
		title = "New movement"
	}
	fmt.Fprintf(&b, "## %s\n\n", escape(title))
	b.WriteString("| | |\n|---|---|\n")

	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, escape(v))
		}
	}

	row("Wallet", walletName(s.Wallets, st.Selections.WalletID))
	row("Method", methodLabel(st))
	row("Schedule", string(st.Selections.Schedule()))

	debtor, creditor, err := submit.ResolveParties(st.Selections.Relationship, s.Me, submit.Counterpart(st))
	if err == nil {
		row("Debtor", partyLabel(debtor))
		row("Creditor", partyLabel(creditor))
	}

	row("Total", money.Format(st.Fields.TotalAmount))
	switch st.Selections.Schedule() {
	case wizard.MovementInstallment:
		row("Installments", fmt.Sprintf("%d x %s", st.Fields.Installments, money.Format(st.PerInstallmentAmount())))
		if st.Installment.IsInProgress {
			row("Already paid", fmt.Sprintf("%d of %d", st.Installment.PaidInstallments, st.Installment.TotalInstallments))
		}
	case wizard.MovementRecurring:
		r := st.Recurring
		row("Interval", string(r.Interval))
		if r.Interval == calc.Monthly && r.DayOfMonth > 0 {
			row("Day of month", fmt.Sprintf("%d", r.DayOfMonth))
		}
		row("Subscription", r.SubscriptionName)
		if r.DurationMonths > 0 {
			row("Duration", fmt.Sprintf("%d months", r.DurationMonths))
		} else {
			row("Duration", "open-ended")
		}
	}
	if !st.Fields.DueDate.IsZero() {
		row("Due date", st.Fields.DueDate.Format(wizard.DateLayout))
	}
	if id := st.PixKeyID(); id != "" {
		row("PIX key", pixKeyLabel(s.PixKeys, id))
	}
	return b.String()
}

// DuplicatesMarkdown lists the movements that look like the one being created.
func DuplicatesMarkdown(candidates []api.DuplicateCandidate) string {
	var b strings.Builder
	b.WriteString("## Possible duplicates\n\n")
	b.WriteString("Similar movements already exist. Create anyway, or go back and review.\n\n")
	b.WriteString("| Description | Amount | Counterpart | Due | Created |\n|---|---|---|---|---|\n")
	for _, c := range candidates {
		created := ""
		if !c.CreatedAt.IsZero() {
			created = c.CreatedAt.Format(wizard.DateLayout)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			escape(c.Description), money.Format(c.Amount), escape(c.CounterpartEmail), escape(c.DueDate), created)
	}
	return b.String()
}

// Render turns markdown into terminal output. On renderer failure the raw
// markdown is returned with the error.
func Render(md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md, err
	}
	out, err := r.Render(md)
	if err != nil {
		return md, err
	}
	return out, nil
}

func methodLabel(st wizard.State) string {
	switch m := st.Selections.Method.(type) {
	case wizard.PixMethod:
		return "PIX"
	case wizard.GatewayMethod:
		if m.PaymentType != wizard.GatewayUnset {
			return "Gateway (" + string(m.PaymentType) + ")"
		}
		return "Gateway"
	}
	return ""
}

func walletName(wallets []api.Wallet, id string) string {
	for _, w := range wallets {
		if w.ID == id {
			return w.Name
		}
	}
	return id
}

func pixKeyLabel(keys []api.PixKey, id string) string {
	for _, k := range keys {
		if k.ID == id {
			return fmt.Sprintf("%s (%s)", k.Key, k.Type)
		}
	}
	return id
}

func partyLabel(p submit.Party) string {
	switch {
	case p.Name != "" && p.Email != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Email)
	case p.Name != "":
		return p.Name
	}
	return p.Email
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
