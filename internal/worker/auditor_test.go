package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

type stubStore struct {
	tx  core.Transaction
	err error
}

func (s *stubStore) GetTransaction(_ context.Context, owner, id int64) (core.Transaction, error) {
	if s.err != nil {
		return core.Transaction{}, s.err
	}
	if s.tx.ID != id || s.tx.UserID != owner {
		return core.Transaction{}, storage.ErrNotFound
	}
	return s.tx, nil
}

func testLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func TestHandleEvent(t *testing.T) {
	tx := core.Transaction{
		ID: 7, UserID: 3, Description: "Mercado",
		Amount: core.Money{Cents: 5000}, Kind: core.Expense,
		Category: "Alimentação", Date: core.NewDate(2024, 3, 5),
	}

	tests := []struct {
		name    string
		store   *stubStore
		event   events.TransactionEvent
		wantErr bool
	}{
		{
			name:  "created event enriched from store",
			store: &stubStore{tx: tx},
			event: events.NewTransactionEvent(7, 3, events.ActionCreated),
		},
		{
			name:  "deleted event never hits the store",
			store: &stubStore{err: errors.New("should not be called")},
			event: events.NewTransactionEvent(7, 3, events.ActionDeleted),
		},
		{
			name:  "missing row is not an error",
			store: &stubStore{},
			event: events.NewTransactionEvent(99, 3, events.ActionUpdated),
		},
		{
			name:    "store failure propagates for requeue",
			store:   &stubStore{err: errors.New("db down")},
			event:   events.NewTransactionEvent(7, 3, events.ActionUpdated),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuditor(tt.store, testLogger())
			err := a.HandleEvent(tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleEvent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
