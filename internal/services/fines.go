package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ─── Fine Calculation Constants ───────────────────────────────────────────────

const (
	// LoanPeriodDays is the number of whole days a copy may be kept without penalty.
	LoanPeriodDays = 30

	// RemarkSeparator joins the individual remarks stored on a Fine.
	RemarkSeparator = "; "
)

var (
	// OverdueFeePerDay is charged for every whole day past LoanPeriodDays.
	OverdueFeePerDay = decimal.RequireFromString("0.50")

	// DefaultDamageFee applies when a damaged book has no usable price.
	DefaultDamageFee = decimal.RequireFromString("50.00")
)

// FineAssessment is the outcome of CalculateFine. Remarks are ordered overdue first.
type FineAssessment struct {
	Total   decimal.Decimal
	Remarks []string
}

// Charged reports whether the assessment should produce a Fine record.
func (a FineAssessment) Charged() bool {
	return a.Total.IsPositive()
}

// Remark joins the individual remarks into the text stored on the Fine.
func (a FineAssessment) Remark() string {
	return strings.Join(a.Remarks, RemarkSeparator)
}

// CalculateFine computes the penalty for a loan returned at returnedAt.
//
// Rules (independent and additive):
//   - Overdue : whole days between the two timestamps (truncated) minus LoanPeriodDays,
//     charged at OverdueFeePerDay when positive.
//   - Damage  : the book price when known and positive, DefaultDamageFee otherwise.
func CalculateFine(borrowedAt, returnedAt time.Time, damaged bool, price decimal.NullDecimal) FineAssessment {
	assessment := FineAssessment{Total: decimal.Zero}

	overdueDays := wholeDaysBetween(borrowedAt, returnedAt) - LoanPeriodDays
	if overdueDays > 0 {
		fee := OverdueFeePerDay.Mul(decimal.NewFromInt(overdueDays)).Round(2)
		assessment.Total = assessment.Total.Add(fee)
		assessment.Remarks = append(assessment.Remarks,
			fmt.Sprintf("overdue %d days (¥%s)", overdueDays, FormatMoney(fee)))
	}

	if damaged {
		fee := DefaultDamageFee
		if price.Valid && price.Decimal.IsPositive() {
			fee = price.Decimal.Round(2)
		}
		assessment.Total = assessment.Total.Add(fee)
		assessment.Remarks = append(assessment.Remarks,
			fmt.Sprintf("damage compensation (¥%s)", FormatMoney(fee)))
	}

	return assessment
}

// FormatMoney renders an amount with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// wholeDaysBetween truncates toward zero; a loan of 30 days and 23 hours counts as 30.
func wholeDaysBetween(from, to time.Time) int64 {
	return int64(to.Sub(from) / (24 * time.Hour))
}
