package turso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emiliopalmerini/splitlab/internal/domain"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Insert(ctx context.Context, event *domain.Event) error {
	var properties sql.NullString
	if len(event.Properties) > 0 {
		data, err := json.Marshal(event.Properties)
		if err != nil {
			return fmt.Errorf("encode event properties: %w", err)
		}
		properties = sql.NullString{String: string(data), Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events (user_id, type, timestamp, properties)
		VALUES (?, ?, ?, ?)`,
		event.UserID,
		event.Type,
		event.Timestamp.UTC().Format(time.RFC3339),
		properties,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read event id: %w", err)
	}
	event.ID = id
	return nil
}
