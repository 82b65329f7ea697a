package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"fintrack/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "fintrack_test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestUser(t *testing.T, store *SQLiteStore, email string) core.User {
	t.Helper()
	u, err := store.CreateUser(context.Background(), "Test User", email, "hash")
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return u
}

func mustCreate(t *testing.T, store *SQLiteStore, owner int64, desc string, cents int64, kind core.Kind, category, date string) core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("parse date %q: %v", date, err)
	}
	tr, err := store.CreateTransaction(context.Background(), owner, core.Transaction{
		Description: desc,
		Amount:      core.Money{Cents: cents},
		Kind:        kind,
		Category:    category,
		Date:        d,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tr
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	newTestUser(t, store, "ana@example.com")
	if _, err := store.CreateUser(ctx, "Other", "ana@example.com", "hash2"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUpdateUserProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := newTestUser(t, store, "ana@example.com")
	other := newTestUser(t, store, "bob@example.com")

	name := "Ana Maria"
	updated, err := store.UpdateUserProfile(ctx, u.ID, &name, nil)
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Name != "Ana Maria" || updated.Email != "ana@example.com" {
		t.Fatalf("unexpected record after update: %+v", updated)
	}

	if _, err := store.UpdateUserProfile(ctx, u.ID, nil, nil); !errors.Is(err, core.ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}

	taken := other.Email
	if _, err := store.UpdateUserProfile(ctx, u.ID, nil, &taken); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := store.UpdateUserProfile(ctx, 9999, &name, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSeededCategories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	all, err := store.ListCategories(ctx, "")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	if len(all) != 12 {
		t.Fatalf("expected 12 seeded categories, got %d", len(all))
	}

	// "Outros" exists once per kind; names are unique only per (name, kind)
	outros := 0
	for _, c := range all {
		if c.Name == "Outros" {
			outros++
		}
	}
	if outros != 2 {
		t.Fatalf("expected Outros for both kinds, got %d", outros)
	}

	incomes, err := store.ListCategories(ctx, core.Income)
	if err != nil {
		t.Fatalf("list income categories: %v", err)
	}
	if len(incomes) != 4 {
		t.Fatalf("expected 4 income categories, got %d", len(incomes))
	}
	for i := 1; i < len(incomes); i++ {
		if incomes[i-1].Name > incomes[i].Name {
			t.Fatalf("categories not ordered by name: %q before %q", incomes[i-1].Name, incomes[i].Name)
		}
	}
}

func TestCreateThenGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	created := mustCreate(t, store, u.ID, "Salário de março", 200000, core.Income, "Salário", "2024-03-01")
	if created.ID == 0 || created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("expected generated id and timestamps: %+v", created)
	}

	got, err := store.GetTransaction(ctx, u.ID, created.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if got.Description != created.Description || got.Amount != created.Amount ||
		got.Kind != created.Kind || got.Category != created.Category ||
		got.Date.String() != created.Date.String() || got.UserID != u.ID {
		t.Fatalf("round trip mismatch:\ncreated %+v\ngot     %+v", created, got)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	_, err := store.CreateTransaction(ctx, u.ID, core.Transaction{
		Description: "ok",
		Amount:      core.Money{Cents: 100},
		Kind:        "transfer",
		Category:    "Outros",
		Date:        core.NewDate(2024, 3, 1),
	})
	if !errors.Is(err, core.ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}

	_, err = store.CreateTransaction(ctx, u.ID, core.Transaction{
		Description: "ok",
		Amount:      core.Money{Cents: -500},
		Kind:        core.Expense,
		Category:    "Outros",
		Date:        core.NewDate(2024, 3, 1),
	})
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestListTransactionsFiltersAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	salary := mustCreate(t, store, u.ID, "salary", 200000, core.Income, "Salário", "2024-03-01")
	groceries := mustCreate(t, store, u.ID, "groceries", 5000, core.Expense, "Alimentação", "2024-03-05")
	older := mustCreate(t, store, u.ID, "january rent", 120000, core.Expense, "Moradia", "2024-01-10")
	sameDay := mustCreate(t, store, u.ID, "pharmacy", 3000, core.Expense, "Saúde", "2024-03-05")

	all, err := store.ListTransactions(ctx, u.ID, TransactionFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	wantOrder := []int64{sameDay.ID, groceries.ID, salary.ID, older.ID}
	if len(all) != len(wantOrder) {
		t.Fatalf("expected %d transactions, got %d", len(wantOrder), len(all))
	}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Fatalf("position %d: expected id %d, got %d", i, id, all[i].ID)
		}
	}

	expenses, err := store.ListTransactions(ctx, u.ID, TransactionFilter{Kind: core.Expense})
	if err != nil {
		t.Fatalf("list expenses: %v", err)
	}
	if len(expenses) != 3 {
		t.Fatalf("expected 3 expenses, got %d", len(expenses))
	}
	for _, tr := range expenses {
		if tr.Kind != core.Expense {
			t.Fatalf("kind filter leaked %s transaction %d", tr.Kind, tr.ID)
		}
	}

	march, err := store.ListTransactions(ctx, u.ID, TransactionFilter{
		DateFrom: core.NewDate(2024, 3, 1),
		DateTo:   core.NewDate(2024, 3, 31),
	})
	if err != nil {
		t.Fatalf("list march: %v", err)
	}
	if len(march) != 3 {
		t.Fatalf("expected 3 march transactions, got %d", len(march))
	}

	conj, err := store.ListTransactions(ctx, u.ID, TransactionFilter{
		Kind:     core.Expense,
		DateFrom: core.NewDate(2024, 3, 1),
		Category: "Alimentação",
	})
	if err != nil {
		t.Fatalf("list conjunction: %v", err)
	}
	if len(conj) != 1 || conj[0].ID != groceries.ID {
		t.Fatalf("expected only groceries, got %+v", conj)
	}

	none, err := store.ListTransactions(ctx, u.ID, TransactionFilter{Category: "Viagens"})
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty sequence, got %d rows", len(none))
	}
}

func TestOwnerScoping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ana := newTestUser(t, store, "ana@example.com")
	bob := newTestUser(t, store, "bob@example.com")

	tr := mustCreate(t, store, bob.ID, "bob's dinner", 4500, core.Expense, "Lazer", "2024-03-02")

	if _, err := store.GetTransaction(ctx, ana.ID, tr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	desc := "hijacked"
	if _, err := store.UpdateTransaction(ctx, ana.ID, tr.ID, core.TransactionPatch{Description: &desc}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteTransaction(ctx, ana.ID, tr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}

	// Bob still sees the untouched row
	got, err := store.GetTransaction(ctx, bob.ID, tr.ID)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if got.Description != "bob's dinner" {
		t.Fatalf("record changed under cross-user access: %+v", got)
	}
}

func TestUpdateTransactionPatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	tr := mustCreate(t, store, u.ID, "groceries", 5000, core.Expense, "Alimentação", "2024-03-05")

	amount := core.Money{Cents: 7500}
	updated, err := store.UpdateTransaction(ctx, u.ID, tr.ID, core.TransactionPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Amount.Cents != 7500 {
		t.Fatalf("expected amount 7500, got %d", updated.Amount.Cents)
	}
	// Only the supplied field changed
	if updated.Description != tr.Description || updated.Kind != tr.Kind ||
		updated.Category != tr.Category || updated.Date.String() != tr.Date.String() {
		t.Fatalf("unsupplied fields changed: %+v", updated)
	}

	if _, err := store.UpdateTransaction(ctx, u.ID, tr.ID, core.TransactionPatch{}); !errors.Is(err, core.ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got %v", err)
	}

	badKind := core.Kind("transfer")
	if _, err := store.UpdateTransaction(ctx, u.ID, tr.ID, core.TransactionPatch{Kind: &badKind}); !errors.Is(err, core.ErrInvalidKind) {
		t.Fatalf("expected ErrInvalidKind, got %v", err)
	}

	// Same-value patch leaves business fields unchanged
	same := tr.Description
	again, err := store.UpdateTransaction(ctx, u.ID, tr.ID, core.TransactionPatch{Description: &same})
	if err != nil {
		t.Fatalf("idempotent update: %v", err)
	}
	if again.Description != tr.Description || again.Amount.Cents != 7500 {
		t.Fatalf("idempotent update changed business fields: %+v", again)
	}

	if _, err := store.UpdateTransaction(ctx, u.ID, 9999, core.TransactionPatch{Description: &same}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent id, got %v", err)
	}
}

func TestDeleteTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	tr := mustCreate(t, store, u.ID, "groceries", 5000, core.Expense, "Alimentação", "2024-03-05")

	if err := store.DeleteTransaction(ctx, u.ID, tr.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetTransaction(ctx, u.ID, tr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteTransaction(ctx, u.ID, tr.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUserDeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")
	mustCreate(t, store, u.ID, "groceries", 5000, core.Expense, "Alimentação", "2024-03-05")

	if _, err := store.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, u.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	var count int64
	if err := store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = ?`, u.ID).Scan(&count); err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected cascade delete, %d transactions remain", count)
	}
}

func TestBalanceAndMonthTotals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	// No transactions yet: zeros, not an error
	income, expense, err := store.BalanceTotals(ctx, u.ID)
	if err != nil {
		t.Fatalf("empty balance: %v", err)
	}
	if income != 0 || expense != 0 {
		t.Fatalf("expected zeros, got income=%d expense=%d", income, expense)
	}

	mustCreate(t, store, u.ID, "salary", 200000, core.Income, "Salário", "2024-03-01")
	mustCreate(t, store, u.ID, "groceries", 5000, core.Expense, "Alimentação", "2024-03-05")
	mustCreate(t, store, u.ID, "january rent", 120000, core.Expense, "Moradia", "2024-01-10")

	income, expense, err = store.BalanceTotals(ctx, u.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if income != 200000 || expense != 125000 {
		t.Fatalf("expected 200000/125000, got %d/%d", income, expense)
	}

	income, expense, err = store.MonthTotals(ctx, u.ID, 2024, 3)
	if err != nil {
		t.Fatalf("month totals: %v", err)
	}
	if income != 200000 || expense != 5000 {
		t.Fatalf("expected 200000/5000 for march, got %d/%d", income, expense)
	}

	// Month-partitioned sums add up to the all-time balance
	jIncome, jExpense, err := store.MonthTotals(ctx, u.ID, 2024, 1)
	if err != nil {
		t.Fatalf("january totals: %v", err)
	}
	if jIncome+income != 200000 || jExpense+expense != 125000 {
		t.Fatalf("month partition mismatch: jan %d/%d mar %d/%d", jIncome, jExpense, income, expense)
	}
}

func TestCategoryTotalsOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	mustCreate(t, store, u.ID, "salary", 200000, core.Income, "Salário", "2024-03-01")
	mustCreate(t, store, u.ID, "groceries", 5000, core.Expense, "Alimentação", "2024-03-05")
	mustCreate(t, store, u.ID, "cinema", 5000, core.Expense, "Lazer", "2024-03-07")

	totals, err := store.CategoryTotals(ctx, u.ID, 2024, 3)
	if err != nil {
		t.Fatalf("category totals: %v", err)
	}
	if len(totals) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(totals))
	}
	if totals[0].Category != "Salário" || totals[0].TotalCents != 200000 {
		t.Fatalf("expected Salário first, got %+v", totals[0])
	}
	// Tie between Alimentação and Lazer resolves alphabetically
	if totals[1].Category != "Alimentação" || totals[2].Category != "Lazer" {
		t.Fatalf("tie not broken by category name: %+v", totals)
	}
}

func TestPeriodBuckets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	mustCreate(t, store, u.ID, "january rent", 120000, core.Expense, "Moradia", "2024-01-10")
	mustCreate(t, store, u.ID, "january food", 30000, core.Expense, "Alimentação", "2024-01-20")
	mustCreate(t, store, u.ID, "march salary", 200000, core.Income, "Salário", "2024-03-01")

	from := core.NewDate(2024, 1, 1)
	to := core.NewDate(2024, 3, 31)

	buckets, err := store.PeriodBuckets(ctx, u.ID, from, to, "")
	if err != nil {
		t.Fatalf("period buckets: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Period != "2024-03" || buckets[1].Period != "2024-01" {
		t.Fatalf("buckets not ordered newest first: %+v", buckets)
	}
	if buckets[0].TotalCents != 200000 || buckets[0].Count != 1 {
		t.Fatalf("march bucket wrong: %+v", buckets[0])
	}
	if buckets[1].TotalCents != 150000 || buckets[1].Count != 2 {
		t.Fatalf("january bucket wrong: %+v", buckets[1])
	}

	onlyIncome, err := store.PeriodBuckets(ctx, u.ID, from, to, core.Income)
	if err != nil {
		t.Fatalf("income buckets: %v", err)
	}
	if len(onlyIncome) != 1 || onlyIncome[0].Kind != core.Income {
		t.Fatalf("kind restriction failed: %+v", onlyIncome)
	}
}

func TestCategoryStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	u := newTestUser(t, store, "ana@example.com")

	mustCreate(t, store, u.ID, "groceries week 1", 4000, core.Expense, "Alimentação", "2024-03-05")
	mustCreate(t, store, u.ID, "groceries week 2", 5000, core.Expense, "Alimentação", "2024-03-12")
	mustCreate(t, store, u.ID, "salary", 200000, core.Income, "Salário", "2024-03-01")

	stats, err := store.CategoryStats(ctx, u.ID, 2024, 3)
	if err != nil {
		t.Fatalf("category stats: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(stats))
	}
	if stats[0].Category != "Salário" || stats[0].Count != 1 {
		t.Fatalf("expected Salário first, got %+v", stats[0])
	}
	if stats[1].Category != "Alimentação" || stats[1].TotalCents != 9000 || stats[1].Count != 2 {
		t.Fatalf("Alimentação group wrong: %+v", stats[1])
	}
}
