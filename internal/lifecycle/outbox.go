package lifecycle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	txcontext "carebridge/pkg/platform/tx"
)

// OutboxSink writes lifecycle events to the lifecycle_outbox table so an
// external relay can deliver them to a broker. When the emitting operation
// carries a SQL transaction in context the write joins that transaction,
// making event capture atomic with the state change.
type OutboxSink struct {
	db *sql.DB
}

// NewOutboxSink creates a postgres-backed outbox writer.
func NewOutboxSink(db *sql.DB) *OutboxSink {
	return &OutboxSink{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *OutboxSink) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *OutboxSink) Deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle payload: %w", err)
	}

	aggregateType := "participant"
	aggregateID := event.ParticipantID.String()
	if !event.EnvelopeID.IsNil() {
		aggregateType = "envelope"
		aggregateID = event.EnvelopeID.String()
	}

	query := `
		INSERT INTO lifecycle_outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		aggregateType,
		aggregateID,
		string(event.Kind),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
