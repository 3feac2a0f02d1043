package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/isdelr/rewear-be/internal/database"
	"github.com/isdelr/rewear-be/internal/models"
)

// Event levels.
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

// DefaultEventLimit is used when the caller asks for no particular limit.
const DefaultEventLimit = 50

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, q database.Querier, eventType, level, message string, userID *string) error
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// EventService keeps the activity log read by admins.
type EventService struct {
	db *database.DB
}

// NewEventService creates a new EventService.
func NewEventService(db *database.DB) *EventService {
	return &EventService{db: db}
}

// CreateEvent logs a new event through q, so callers can record it inside
// their own transaction. A nil q uses the pool.
func (s *EventService) CreateEvent(ctx context.Context, q database.Querier, eventType, level, message string, userID *string) error {
	if q == nil {
		q = s.db
	}

	query, args, err := s.db.Builder.
		Insert("events").
		Columns("id", "type", "level", "message", "user_id", "created_at").
		Values(uuid.NewString(), eventType, level, message, userID, now()).
		ToSql()
	if err != nil {
		return fmt.Errorf("building event insert: %w", err)
	}

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting event %s: %w", eventType, err)
	}
	return nil
}

// GetRecentEvents retrieves the most recent events, newest first.
func (s *EventService) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	query, args, err := s.db.Builder.
		Select("id", "type", "level", "message", "user_id", "created_at").
		From("events").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building event query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &event.UserID, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
