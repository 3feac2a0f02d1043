package services

import (
	"context"
	"fmt"

	"github.com/isdelr/rewear-be/internal/database"
	"github.com/isdelr/rewear-be/internal/models"
)

// AdminServiceProvider defines the moderation and reporting operations.
type AdminServiceProvider interface {
	PendingItems(ctx context.Context, limit, offset int) ([]models.Item, error)
	ApproveItem(ctx context.Context, actor Actor, id string) (models.Item, error)
	RejectItem(ctx context.Context, actor Actor, id string) (models.Item, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	DeactivateUser(ctx context.Context, actor Actor, id string) error
	RecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// AdminService groups what the admin area needs on top of the other services.
type AdminService struct {
	db     *database.DB
	items  ItemServiceProvider
	users  UserServiceProvider
	events EventServiceProvider
}

// NewAdminService creates a new AdminService.
func NewAdminService(db *database.DB, items ItemServiceProvider, users UserServiceProvider, events EventServiceProvider) *AdminService {
	return &AdminService{db: db, items: items, users: users, events: events}
}

// PendingItems lists items awaiting moderation, newest first.
func (s *AdminService) PendingItems(ctx context.Context, limit, offset int) ([]models.Item, error) {
	return s.items.ListItems(ctx, models.ItemFilter{Status: models.ItemPending, Limit: limit, Offset: offset})
}

// ApproveItem publishes a pending item.
func (s *AdminService) ApproveItem(ctx context.Context, actor Actor, id string) (models.Item, error) {
	return s.items.Moderate(ctx, actor, id, models.ItemApproved)
}

// RejectItem turns a pending item down for good.
func (s *AdminService) RejectItem(ctx context.Context, actor Actor, id string) (models.Item, error) {
	return s.items.Moderate(ctx, actor, id, models.ItemRejected)
}

// ListUsers returns all accounts.
func (s *AdminService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

// DeactivateUser soft-deletes another user's account.
func (s *AdminService) DeactivateUser(ctx context.Context, actor Actor, id string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return s.users.Deactivate(ctx, actor, id)
}

// RecentEvents returns the activity log.
func (s *AdminService) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	return s.events.GetRecentEvents(ctx, limit)
}

// Stats counts users, items per status and swaps per status.
func (s *AdminService) Stats(ctx context.Context) (models.Stats, error) {
	stats := models.Stats{
		Items: map[string]int{
			models.ItemPending: 0, models.ItemApproved: 0, models.ItemRejected: 0, models.ItemSwapped: 0,
		},
		Swaps: map[string]int{
			models.SwapProposed: 0, models.SwapAccepted: 0, models.SwapRejected: 0,
			models.SwapCancelled: 0, models.SwapCompleted: 0,
		},
	}

	query, args, err := s.db.Builder.
		Select("COUNT(*)", "COUNT(deactivated_at)").
		From("users").
		ToSql()
	if err != nil {
		return models.Stats{}, fmt.Errorf("building user stats: %w", err)
	}
	var deactivated int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&stats.Users, &deactivated); err != nil {
		return models.Stats{}, fmt.Errorf("counting users: %w", err)
	}
	stats.ActiveUsers = stats.Users - deactivated

	if err := s.countByStatus(ctx, "items", "deleted_at IS NULL", stats.Items); err != nil {
		return models.Stats{}, err
	}
	if err := s.countByStatus(ctx, "swaps", "", stats.Swaps); err != nil {
		return models.Stats{}, err
	}
	return stats, nil
}

func (s *AdminService) countByStatus(ctx context.Context, table, where string, into map[string]int) error {
	b := s.db.Builder.Select("status", "COUNT(*)").From(table).GroupBy("status")
	if where != "" {
		b = b.Where(where)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("building %s stats: %w", table, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("counting %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return fmt.Errorf("scanning %s stats: %w", table, err)
		}
		into[status] = n
	}
	return rows.Err()
}
