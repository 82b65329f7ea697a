// Package worker consumes transaction events off the broker and writes a
// structured audit trail.
package worker

import (
	"context"
	"errors"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/log"
	"fintrack/internal/storage"
)

// Store is the read slice the auditor needs to enrich events.
type Store interface {
	GetTransaction(ctx context.Context, owner, id int64) (core.Transaction, error)
}

// Auditor turns transaction events into audit log records, enriching create
// and update events with the current stored record.
type Auditor struct {
	store  Store
	logger *log.Logger
}

func NewAuditor(store Store, logger *log.Logger) *Auditor {
	return &Auditor{
		store:  store,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes one event. A missing row is not an error: the
// transaction may have been deleted between publish and consume.
func (a *Auditor) HandleEvent(ev events.TransactionEvent) error {
	ctx := context.Background()

	if ev.Action == events.ActionDeleted {
		a.logger.InfoContext(ctx, "Audit: transaction deleted",
			log.FieldTransactionID, ev.TransactionID,
			log.FieldUserID, ev.UserID,
			"occurred_at", ev.OccurredAt)
		return nil
	}

	tx, err := a.store.GetTransaction(ctx, ev.UserID, ev.TransactionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.logger.WarnContext(ctx, "Audit: transaction no longer present",
				log.FieldTransactionID, ev.TransactionID,
				log.FieldUserID, ev.UserID,
				"action", ev.Action)
			return nil
		}
		return err
	}

	a.logger.InfoContext(ctx, "Audit: transaction "+ev.Action,
		log.FieldTransactionID, tx.ID,
		log.FieldUserID, tx.UserID,
		log.FieldKind, tx.Kind,
		log.FieldCategory, tx.Category,
		log.FieldAmountCents, tx.Amount.Cents,
		"date", tx.Date.String(),
		"occurred_at", ev.OccurredAt)
	return nil
}
