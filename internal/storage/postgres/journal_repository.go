package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

type journalRepository struct {
	db *sql.DB
}

// NewJournalRepository создаёт PostgreSQL-реализацию журнала кассы.
func NewJournalRepository(store *Store) domain.JournalRepository {
	return &journalRepository{db: store.DB()}
}

func (r *journalRepository) Append(event domain.JournalEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO checkout_journal (id, receipt_id, event_type, detail, occurred_at)
		VALUES ($1,$2,$3,$4,$5)
	`, event.ID, event.ReceiptID, event.Type, event.Detail, event.Occurred)
	if err != nil {
		return fmt.Errorf("append journal event: %w", err)
	}
	return nil
}

func (r *journalRepository) List(receiptID string) ([]domain.JournalEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, receipt_id, event_type, detail, occurred_at
		FROM checkout_journal
		WHERE receipt_id = $1
		ORDER BY occurred_at ASC, id ASC
	`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("list journal events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.JournalEvent, 0)
	for rows.Next() {
		var event domain.JournalEvent
		if err := rows.Scan(&event.ID, &event.ReceiptID, &event.Type, &event.Detail, &event.Occurred); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal events: %w", err)
	}

	return events, nil
}

var _ domain.JournalRepository = (*journalRepository)(nil)
