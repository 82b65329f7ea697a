// Package report derives summary views from a user's transaction set:
// the dashboard balance, per-period buckets, and category statistics.
// All sums happen in integer cents; the engine never reads the clock, so
// callers supply the month and year explicitly.
package report

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

var (
	ErrInvalidMonth = fmt.Errorf("%w: month must be between 1 and 12", core.ErrValidation)
	ErrInvalidYear  = fmt.Errorf("%w: year must be positive", core.ErrValidation)
	ErrMissingDates = fmt.Errorf("%w: startDate and endDate are required", core.ErrValidation)
	ErrInvalidRange = fmt.Errorf("%w: startDate must not be after endDate", core.ErrValidation)
)

// Store is the slice of the persistent store the engine aggregates over.
type Store interface {
	BalanceTotals(ctx context.Context, owner int64) (incomeCents, expenseCents int64, err error)
	MonthTotals(ctx context.Context, owner int64, year, month int) (incomeCents, expenseCents int64, err error)
	CategoryTotals(ctx context.Context, owner int64, year, month int) ([]storage.CategoryTotal, error)
	PeriodBuckets(ctx context.Context, owner int64, from, to core.Date, kind core.Kind) ([]storage.PeriodBucket, error)
	CategoryStats(ctx context.Context, owner int64, year, month int) ([]storage.CategoryStat, error)
}

type Balance struct {
	Total        core.Money `json:"total"`
	TotalIncome  core.Money `json:"totalIncome"`
	TotalExpense core.Money `json:"totalExpense"`
}

type MonthlySummary struct {
	Month   int        `json:"month"`
	Year    int        `json:"year"`
	Income  core.Money `json:"income"`
	Expense core.Money `json:"expense"`
	Balance core.Money `json:"balance"`
}

type CategoryTotal struct {
	Category string     `json:"category"`
	Kind     core.Kind  `json:"type"`
	Total    core.Money `json:"total"`
}

type DashboardView struct {
	Balance           Balance         `json:"balance"`
	Monthly           MonthlySummary  `json:"monthly"`
	CategoryBreakdown []CategoryTotal `json:"categoryBreakdown"`
}

type PeriodBucket struct {
	Period string     `json:"period"`
	Kind   core.Kind  `json:"type"`
	Total  core.Money `json:"total"`
	Count  int64      `json:"count"`
}

type CategoryStat struct {
	Category string     `json:"category"`
	Kind     core.Kind  `json:"type"`
	Total    core.Money `json:"total"`
	Count    int64      `json:"count"`
	Average  core.Money `json:"average"`
}

type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

func validateMonthYear(month, year int) error {
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	if year < 1 {
		return ErrInvalidYear
	}
	return nil
}

// Dashboard computes the all-time balance, the totals for the given
// calendar month, and that month's per-category breakdown. A user with no
// transactions gets all-zero sums, never an error.
func (e *Engine) Dashboard(ctx context.Context, owner int64, month, year int) (DashboardView, error) {
	if err := validateMonthYear(month, year); err != nil {
		return DashboardView{}, err
	}

	totalIncome, totalExpense, err := e.store.BalanceTotals(ctx, owner)
	if err != nil {
		return DashboardView{}, fmt.Errorf("dashboard balance: %w", err)
	}
	monthIncome, monthExpense, err := e.store.MonthTotals(ctx, owner, year, month)
	if err != nil {
		return DashboardView{}, fmt.Errorf("dashboard month totals: %w", err)
	}
	categoryRows, err := e.store.CategoryTotals(ctx, owner, year, month)
	if err != nil {
		return DashboardView{}, fmt.Errorf("dashboard category totals: %w", err)
	}

	breakdown := make([]CategoryTotal, 0, len(categoryRows))
	for _, row := range categoryRows {
		breakdown = append(breakdown, CategoryTotal{
			Category: row.Category,
			Kind:     row.Kind,
			Total:    core.Money{Cents: row.TotalCents},
		})
	}

	return DashboardView{
		Balance: Balance{
			Total:        core.Money{Cents: totalIncome - totalExpense},
			TotalIncome:  core.Money{Cents: totalIncome},
			TotalExpense: core.Money{Cents: totalExpense},
		},
		Monthly: MonthlySummary{
			Month:   month,
			Year:    year,
			Income:  core.Money{Cents: monthIncome},
			Expense: core.Money{Cents: monthExpense},
			Balance: core.Money{Cents: monthIncome - monthExpense},
		},
		CategoryBreakdown: breakdown,
	}, nil
}

// ByPeriod groups transactions with date in [from, to] by calendar month
// and kind, newest period first. Both dates are required; kind optionally
// restricts the buckets to one direction.
func (e *Engine) ByPeriod(ctx context.Context, owner int64, from, to core.Date, kind core.Kind) ([]PeriodBucket, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrMissingDates
	}
	if from.After(to.Time) {
		return nil, ErrInvalidRange
	}
	if kind != "" {
		if err := kind.Validate(); err != nil {
			return nil, err
		}
	}

	rows, err := e.store.PeriodBuckets(ctx, owner, from, to, kind)
	if err != nil {
		return nil, fmt.Errorf("period report: %w", err)
	}

	buckets := make([]PeriodBucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, PeriodBucket{
			Period: row.Period,
			Kind:   row.Kind,
			Total:  core.Money{Cents: row.TotalCents},
			Count:  row.Count,
		})
	}
	return buckets, nil
}

// ByCategory groups the given calendar month by (category, kind) with sum,
// count, and arithmetic mean per group, summed amount descending.
func (e *Engine) ByCategory(ctx context.Context, owner int64, month, year int) ([]CategoryStat, error) {
	if err := validateMonthYear(month, year); err != nil {
		return nil, err
	}

	rows, err := e.store.CategoryStats(ctx, owner, year, month)
	if err != nil {
		return nil, fmt.Errorf("category report: %w", err)
	}

	stats := make([]CategoryStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, CategoryStat{
			Category: row.Category,
			Kind:     row.Kind,
			Total:    core.Money{Cents: row.TotalCents},
			Count:    row.Count,
			Average:  core.Money{Cents: meanCents(row.TotalCents, row.Count)},
		})
	}
	return stats, nil
}

// meanCents computes the arithmetic mean with half-up rounding, staying in
// integer arithmetic. Sums are always non-negative here.
func meanCents(totalCents, count int64) int64 {
	if count == 0 {
		return 0
	}
	return (totalCents + count/2) / count
}
