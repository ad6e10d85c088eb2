// Package calc keeps total amount, per-installment amount and installment
// count consistent, and rolls recurring due dates forward.
// Everything here is pure: same inputs, same outputs, no clock reads.
package calc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"debtflow/internal/money"
)

// Mode selects which amount the user types.
type Mode string

const (
	ModeTotal          Mode = "total"
	ModePerInstallment Mode = "per-installment"
)

var (
	ErrNoRemainingInstallments = errors.New("paid installments must be fewer than total installments")
	ErrInvalidInstallmentCount = errors.New("installment count must be positive")
	ErrNegativePaid            = errors.New("paid installments must not be negative")
	ErrUnknownMode             = errors.New("unknown installment mode")
)

// Input is everything the calculator reads.
type Input struct {
	Mode              Mode
	TotalAmount       decimal.Decimal // read in ModeTotal
	Installments      int             // read in ModeTotal, and ModePerInstallment without history
	InstallmentAmount decimal.Decimal // read in ModePerInstallment
	InProgress        bool
	TotalInstallments int // read when InProgress
	PaidInstallments  int // read when InProgress
}

// Output is the derived trio plus the display-only per-installment amount.
type Output struct {
	TotalAmount       decimal.Decimal
	Installments      int
	InstallmentAmount decimal.Decimal
	Remaining         int
}

// Installments derives the consistent trio for the given input.
func Installments(in Input) (Output, error) {
	switch in.Mode {
	case ModeTotal, "":
		if in.Installments <= 0 {
			return Output{}, ErrInvalidInstallmentCount
		}
		return Output{
			TotalAmount:       in.TotalAmount,
			Installments:      in.Installments,
			InstallmentAmount: PerInstallment(in.TotalAmount, in.Installments),
			Remaining:         in.Installments,
		}, nil

	case ModePerInstallment:
		if in.InProgress {
			remaining, err := Remaining(in.TotalInstallments, in.PaidInstallments)
			if err != nil {
				return Output{}, err
			}
			return Output{
				TotalAmount:       in.InstallmentAmount.Mul(decimal.NewFromInt(int64(remaining))),
				Installments:      remaining,
				InstallmentAmount: in.InstallmentAmount,
				Remaining:         remaining,
			}, nil
		}
		if in.Installments <= 0 {
			return Output{}, ErrInvalidInstallmentCount
		}
		return Output{
			TotalAmount:       in.InstallmentAmount.Mul(decimal.NewFromInt(int64(in.Installments))),
			Installments:      in.Installments,
			InstallmentAmount: in.InstallmentAmount,
			Remaining:         in.Installments,
		}, nil
	}
	return Output{}, fmt.Errorf("%w: %q", ErrUnknownMode, in.Mode)
}

// Remaining returns total-paid, which must be positive.
func Remaining(total, paid int) (int, error) {
	if paid < 0 {
		return 0, ErrNegativePaid
	}
	if total <= 0 {
		return 0, ErrInvalidInstallmentCount
	}
	remaining := total - paid
	if remaining <= 0 {
		return 0, ErrNoRemainingInstallments
	}
	return remaining, nil
}

// PerInstallment is total/n rounded to cents. Display only.
func PerInstallment(total decimal.Decimal, n int) decimal.Decimal {
	if n <= 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(n)), money.Places)
}

// Split divides total into n cent-exact parts that sum back to total;
// the rounding remainder goes to the first installments.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	cents := money.Cents(total)
	base := cents / int64(n)
	extra := cents % int64(n)

	parts := make([]decimal.Decimal, n)
	for i := range parts {
		c := base
		if int64(i) < extra {
			c++
		}
		parts[i] = money.FromCents(c)
	}
	return parts
}
