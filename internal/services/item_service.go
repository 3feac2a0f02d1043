package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/isdelr/rewear-be/internal/database"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/models"
)

// Listing page sizes.
const (
	DefaultItemLimit = 20
	MaxItemLimit     = 100
)

// ItemServiceProvider defines the interface for item services.
type ItemServiceProvider interface {
	CreateItem(ctx context.Context, ownerID string, input ItemInput) (models.Item, error)
	ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, error)
	GetItemByID(ctx context.Context, id string) (models.Item, error)
	UpdateItem(ctx context.Context, actor Actor, id string, update ItemUpdate) (models.Item, error)
	DeleteItem(ctx context.Context, actor Actor, id string) error
	Moderate(ctx context.Context, actor Actor, id, status string) (models.Item, error)
}

// ItemInput holds the fields of a new listing.
type ItemInput struct {
	Title       string
	Description string
	Category    string
	Size        string
	Condition   string
	Tags        []string
	Images      []string
}

// ItemUpdate carries editable item fields; nil means unchanged. Status is
// reserved to admins.
type ItemUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Size        *string
	Condition   *string
	Tags        *[]string
	Images      *[]string
	Status      *string
}

func (u ItemUpdate) hasFieldChanges() bool {
	return u.Title != nil || u.Description != nil || u.Category != nil ||
		u.Size != nil || u.Condition != nil || u.Tags != nil || u.Images != nil
}

var itemColumns = []string{
	"id", "owner_id", "title", "description", "category", "size",
	"item_condition", "tags_json", "images_json", "status", "created_at", "updated_at",
}

// ItemService provides business logic for item listings.
type ItemService struct {
	db     *database.DB
	events EventServiceProvider
	log    *logger.Logger
}

// NewItemService creates a new ItemService.
func NewItemService(db *database.DB, events EventServiceProvider, log *logger.Logger) *ItemService {
	return &ItemService{db: db, events: events, log: log.Component("items")}
}

func scanItem(row rowScanner) (models.Item, error) {
	var item models.Item
	err := row.Scan(
		&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Category, &item.Size,
		&item.Condition, &item.TagsJSON, &item.ImagesJSON, &item.Status, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return models.Item{}, err
	}
	item.PrepareForAPI()
	return item, nil
}

func (s *ItemService) getItem(ctx context.Context, q database.Querier, id string) (models.Item, error) {
	query, args, err := s.db.Builder.
		Select(itemColumns...).
		From("items").
		Where(sq.Eq{"id": id, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return models.Item{}, fmt.Errorf("building item query: %w", err)
	}

	item, err := scanItem(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("querying item %s: %w", id, err)
	}
	return item, nil
}

// GetItemByID retrieves a single item that has not been deleted.
func (s *ItemService) GetItemByID(ctx context.Context, id string) (models.Item, error) {
	return s.getItem(ctx, s.db, id)
}

// CreateItem lists a new item owned by ownerID. It starts pending moderation.
func (s *ItemService) CreateItem(ctx context.Context, ownerID string, input ItemInput) (models.Item, error) {
	if err := validateCondition(input.Condition); err != nil {
		return models.Item{}, err
	}
	images, err := normalizeImages(input.Images)
	if err != nil {
		return models.Item{}, err
	}

	ts := now()
	item := models.Item{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Category:    strings.TrimSpace(input.Category),
		Size:        strings.TrimSpace(input.Size),
		Condition:   input.Condition,
		Tags:        normalizeTags(input.Tags),
		Images:      images,
		Status:      models.ItemPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if item.Title == "" {
		return models.Item{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	item.PrepareForSave()

	query, args, err := s.db.Builder.
		Insert("items").
		Columns(itemColumns...).
		Values(item.ID, item.OwnerID, item.Title, item.Description, item.Category, item.Size,
			item.Condition, item.TagsJSON, item.ImagesJSON, item.Status, item.CreatedAt, item.UpdatedAt).
		ToSql()
	if err != nil {
		return models.Item{}, fmt.Errorf("building item insert: %w", err)
	}

	err = s.db.Retry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return models.Item{}, fmt.Errorf("inserting item: %w", err)
	}

	s.log.Info().Str("item_id", item.ID).Str("owner_id", ownerID).Msg("item created")
	return item, nil
}

// ListItems returns non-deleted items matching filter, newest first.
func (s *ItemService) ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	where := sq.And{sq.Eq{"deleted_at": nil}}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.OwnerID != "" {
		where = append(where, sq.Eq{"owner_id": filter.OwnerID})
	}
	if filter.Category != "" {
		where = append(where, sq.Eq{"category": filter.Category})
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		where = append(where, sq.Or{
			sq.Expr("LOWER(title) LIKE ?", pattern),
			sq.Expr("LOWER(description) LIKE ?", pattern),
		})
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultItemLimit
	}
	if limit > MaxItemLimit {
		limit = MaxItemLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query, args, err := s.db.Builder.
		Select(itemColumns...).
		From("items").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building item list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem edits an item. The owner (or an admin) may change fields while
// the item is pending; only admins may change the status, following the
// moderation rules of Moderate.
func (s *ItemService) UpdateItem(ctx context.Context, actor Actor, id string, update ItemUpdate) (models.Item, error) {
	if update.Status != nil && !actor.IsAdmin() {
		return models.Item{}, fmt.Errorf("%w: only admins may change an item's status", ErrForbidden)
	}
	if update.Condition != nil {
		if err := validateCondition(*update.Condition); err != nil {
			return models.Item{}, err
		}
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return models.Item{}, fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}

	var (
		item  models.Item
		event *models.Event
	)
	err := s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		event = nil

		current, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.OwnerID != actor.ID && !actor.IsAdmin() {
			return ErrForbidden
		}

		if update.hasFieldChanges() {
			if current.Status != models.ItemPending {
				return fmt.Errorf("%w: only pending items can be edited", ErrInvalidState)
			}
			if err := s.applyFields(ctx, tx, current.ID, update); err != nil {
				return err
			}
		}

		if update.Status != nil && *update.Status != current.Status {
			event, err = s.moderate(ctx, tx, actor, current, *update.Status)
			if err != nil {
				return err
			}
		}

		item, err = s.getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Item{}, err
	}
	s.logModeration(event)
	return item, nil
}

func (s *ItemService) applyFields(ctx context.Context, tx *sql.Tx, id string, update ItemUpdate) error {
	set := map[string]any{"updated_at": now()}
	if update.Title != nil {
		set["title"] = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Category != nil {
		set["category"] = strings.TrimSpace(*update.Category)
	}
	if update.Size != nil {
		set["size"] = strings.TrimSpace(*update.Size)
	}
	if update.Condition != nil {
		set["item_condition"] = *update.Condition
	}
	if update.Tags != nil {
		tmp := models.Item{Tags: normalizeTags(*update.Tags)}
		tmp.PrepareForSave()
		set["tags_json"] = tmp.TagsJSON
	}
	if update.Images != nil {
		images, err := normalizeImages(*update.Images)
		if err != nil {
			return err
		}
		tmp := models.Item{Images: images}
		tmp.PrepareForSave()
		set["images_json"] = tmp.ImagesJSON
	}

	query, args, err := s.db.Builder.
		Update("items").
		SetMap(set).
		Where(sq.Eq{"id": id, "status": models.ItemPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building item update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: only pending items can be edited", ErrInvalidState)
	}
	return nil
}

// Moderate moves a pending item to approved or rejected. The decision is
// final: a rejected item has to be submitted again as a new item.
func (s *ItemService) Moderate(ctx context.Context, actor Actor, id, status string) (models.Item, error) {
	var (
		item  models.Item
		event *models.Event
	)
	err := s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}

		event, err = s.moderate(ctx, tx, actor, current, status)
		if err != nil {
			return err
		}

		item, err = s.getItem(ctx, tx, id)
		return err
	})
	if err != nil {
		return models.Item{}, err
	}
	s.logModeration(event)
	return item, nil
}

func (s *ItemService) moderate(ctx context.Context, tx *sql.Tx, actor Actor, item models.Item, status string) (*models.Event, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	if status != models.ItemApproved && status != models.ItemRejected {
		return nil, fmt.Errorf("%w: status must be %q or %q", ErrValidation, models.ItemApproved, models.ItemRejected)
	}
	if item.Status != models.ItemPending {
		return nil, fmt.Errorf("%w: item is already %s", ErrInvalidState, item.Status)
	}

	query, args, err := s.db.Builder.
		Update("items").
		Set("status", status).
		Set("updated_at", now()).
		Where(sq.Eq{"id": item.ID, "status": models.ItemPending}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building moderation update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("moderating item: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return nil, fmt.Errorf("%w: item is no longer pending", ErrInvalidState)
	}

	event := &models.Event{
		Type:    "item." + status,
		Level:   LevelInfo,
		Message: fmt.Sprintf("item %q %s by %s", item.Title, status, actor.ID),
		UserID:  &item.OwnerID,
	}
	if err := s.events.CreateEvent(ctx, tx, event.Type, event.Level, event.Message, event.UserID); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *ItemService) logModeration(event *models.Event) {
	if event == nil {
		return
	}
	s.log.Info().Str("event", event.Type).Msg(event.Message)
}

// DeleteItem soft-deletes an item. Owners and admins may delete, but not
// once the item is swapped or while a swap on it is still open.
func (s *ItemService) DeleteItem(ctx context.Context, actor Actor, id string) error {
	return s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		item, err := s.getItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.OwnerID != actor.ID && !actor.IsAdmin() {
			return ErrForbidden
		}
		if item.Status == models.ItemSwapped {
			return fmt.Errorf("%w: swapped items cannot be deleted", ErrInvalidState)
		}

		active, err := hasActiveSwap(ctx, s.db, tx, item.ID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: item has an open swap", ErrInvalidState)
		}

		query, args, err := s.db.Builder.
			Update("items").
			Set("deleted_at", now()).
			Where(sq.Eq{"id": item.ID, "deleted_at": nil}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building item delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("deleting item: %w", err)
		}

		s.log.Info().Str("item_id", item.ID).Str("actor_id", actor.ID).Msg("item deleted")
		return nil
	})
}

// hasActiveSwap reports whether a proposed or accepted swap references itemID.
func hasActiveSwap(ctx context.Context, db *database.DB, q database.Querier, itemID string) (bool, error) {
	query, args, err := db.Builder.
		Select("COUNT(*)").
		From("swaps").
		Where(sq.Eq{"item_id": itemID, "status": []string{models.SwapProposed, models.SwapAccepted}}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("building active swap query: %w", err)
	}

	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("counting active swaps: %w", err)
	}
	return n > 0, nil
}

func validateCondition(condition string) error {
	switch condition {
	case "", models.ConditionNew, models.ConditionLikeNew, models.ConditionGood, models.ConditionFair:
		return nil
	}
	return fmt.Errorf("%w: unknown condition %q", ErrValidation, condition)
}

// normalizeImages drops blank and repeated URLs, keeping the caller's order.
func normalizeImages(images []string) ([]string, error) {
	seen := make(map[string]bool, len(images))
	out := make([]string, 0, len(images))
	for _, image := range images {
		image = strings.TrimSpace(image)
		if image == "" || seen[image] {
			continue
		}
		seen[image] = true
		out = append(out, image)
	}
	if len(out) > models.MaxItemImages {
		return nil, fmt.Errorf("%w: at most %d images per item", ErrValidation, models.MaxItemImages)
	}
	return out, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
