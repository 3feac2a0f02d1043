package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/isdelr/rewear-be/internal/config"
	"github.com/isdelr/rewear-be/internal/database"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/models"
)

// Swap listing roles.
const (
	SwapRoleProposer  = "proposer"
	SwapRoleRecipient = "recipient"
)

// Notifier delivers swap status changes to the listed users. Delivery is
// best effort.
type Notifier interface {
	NotifySwap(event models.SwapEvent, userIDs ...string)
}

// TransitionRecorder counts swap status changes.
type TransitionRecorder interface {
	SwapTransition(status string)
}

// SwapServiceProvider defines the interface for swap services.
type SwapServiceProvider interface {
	Propose(ctx context.Context, proposerID string, input ProposeInput) (models.Swap, error)
	ListSwaps(ctx context.Context, userID string, filter models.SwapFilter) ([]models.Swap, error)
	GetSwap(ctx context.Context, actor Actor, id string) (models.Swap, error)
	Accept(ctx context.Context, actor Actor, id string) (models.Swap, error)
	Reject(ctx context.Context, actor Actor, id string) (models.Swap, error)
	Cancel(ctx context.Context, actor Actor, id string) (models.Swap, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// ProposeInput is a swap proposal. RecipientID is optional and, when given,
// must name the item's owner.
type ProposeInput struct {
	ItemID      string
	RecipientID string
	Message     string
}

var swapColumns = []string{
	"id", "item_id", "proposer_id", "recipient_id", "message", "status", "created_at", "updated_at",
}

// SwapService runs the swap lifecycle.
type SwapService struct {
	db       *database.DB
	events   EventServiceProvider
	notifier Notifier
	recorder TransitionRecorder
	log      *logger.Logger
}

// NewSwapService creates a new SwapService. notifier and recorder may be nil.
func NewSwapService(db *database.DB, events EventServiceProvider, notifier Notifier, recorder TransitionRecorder, log *logger.Logger) *SwapService {
	return &SwapService{
		db:       db,
		events:   events,
		notifier: notifier,
		recorder: recorder,
		log:      log.Component("swaps"),
	}
}

// transition is a committed status change waiting to be announced.
type transition struct {
	swap models.Swap
	at   time.Time
}

func scanSwap(row rowScanner) (models.Swap, error) {
	var swap models.Swap
	err := row.Scan(
		&swap.ID, &swap.ItemID, &swap.ProposerID, &swap.RecipientID,
		&swap.Message, &swap.Status, &swap.CreatedAt, &swap.UpdatedAt,
	)
	return swap, err
}

func (s *SwapService) getSwap(ctx context.Context, q database.Querier, id string) (models.Swap, error) {
	query, args, err := s.db.Builder.Select(swapColumns...).From("swaps").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.Swap{}, fmt.Errorf("building swap query: %w", err)
	}

	swap, err := scanSwap(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Swap{}, ErrNotFound
	}
	if err != nil {
		return models.Swap{}, fmt.Errorf("querying swap %s: %w", id, err)
	}
	return swap, nil
}

// Propose opens a swap on an approved item. Checks run in a fixed order so a
// self-swap is always reported as a validation error first.
func (s *SwapService) Propose(ctx context.Context, proposerID string, input ProposeInput) (models.Swap, error) {
	if input.RecipientID != "" && input.RecipientID == proposerID {
		return models.Swap{}, fmt.Errorf("%w: you cannot propose a swap to yourself", ErrValidation)
	}
	if input.ItemID == "" {
		return models.Swap{}, fmt.Errorf("%w: item_id is required", ErrValidation)
	}

	var swap models.Swap
	err := s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		item, err := s.lockItem(ctx, tx, input.ItemID)
		if err != nil {
			return err
		}

		if item.OwnerID == proposerID {
			return fmt.Errorf("%w: you cannot propose a swap to yourself", ErrValidation)
		}
		if input.RecipientID != "" && input.RecipientID != item.OwnerID {
			return fmt.Errorf("%w: recipient must be the item's owner", ErrValidation)
		}
		if item.Status != models.ItemApproved {
			return fmt.Errorf("%w: item is %s, not approved", ErrInvalidState, item.Status)
		}

		active, err := hasActiveSwap(ctx, s.db, tx, item.ID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: item is already part of an open swap", ErrInvalidState)
		}

		ts := now()
		swap = models.Swap{
			ID:          uuid.NewString(),
			ItemID:      item.ID,
			ProposerID:  proposerID,
			RecipientID: item.OwnerID,
			Message:     input.Message,
			Status:      models.SwapProposed,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}

		query, args, err := s.db.Builder.
			Insert("swaps").
			Columns(swapColumns...).
			Values(swap.ID, swap.ItemID, swap.ProposerID, swap.RecipientID,
				swap.Message, swap.Status, swap.CreatedAt, swap.UpdatedAt).
			ToSql()
		if err != nil {
			return fmt.Errorf("building swap insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: item is already part of an open swap", ErrInvalidState)
			}
			return fmt.Errorf("inserting swap: %w", err)
		}

		message := fmt.Sprintf("swap proposed on item %q", item.Title)
		return s.events.CreateEvent(ctx, tx, "swap.proposed", LevelInfo, message, &proposerID)
	})
	if err != nil {
		return models.Swap{}, err
	}

	s.announce(transition{swap: swap, at: swap.CreatedAt})
	return swap, nil
}

// lockItem loads an item for a swap decision. On Postgres the row is locked
// until the transaction ends; SQLite serializes writers anyway.
func (s *SwapService) lockItem(ctx context.Context, tx *sql.Tx, id string) (models.Item, error) {
	b := s.db.Builder.Select(itemColumns...).From("items").Where(sq.Eq{"id": id, "deleted_at": nil})
	if s.db.Driver == config.DriverPostgres {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return models.Item{}, fmt.Errorf("building item lock: %w", err)
	}

	item, err := scanItem(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		return models.Item{}, fmt.Errorf("locking item %s: %w", id, err)
	}
	return item, nil
}

// ListSwaps returns the swaps userID takes part in, newest first.
func (s *SwapService) ListSwaps(ctx context.Context, userID string, filter models.SwapFilter) ([]models.Swap, error) {
	var where sq.And
	switch filter.Role {
	case "":
		where = append(where, sq.Or{sq.Eq{"proposer_id": userID}, sq.Eq{"recipient_id": userID}})
	case SwapRoleProposer:
		where = append(where, sq.Eq{"proposer_id": userID})
	case SwapRoleRecipient:
		where = append(where, sq.Eq{"recipient_id": userID})
	default:
		return nil, fmt.Errorf("%w: role must be %q or %q", ErrValidation, SwapRoleProposer, SwapRoleRecipient)
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}

	query, args, err := s.db.Builder.
		Select(swapColumns...).
		From("swaps").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building swap list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying swaps: %w", err)
	}
	defer rows.Close()

	swaps := []models.Swap{}
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning swap: %w", err)
		}
		swaps = append(swaps, swap)
	}
	return swaps, rows.Err()
}

// GetSwap returns a swap visible to its participants and admins.
func (s *SwapService) GetSwap(ctx context.Context, actor Actor, id string) (models.Swap, error) {
	swap, err := s.getSwap(ctx, s.db, id)
	if err != nil {
		return models.Swap{}, err
	}
	if !swap.Involves(actor.ID) && !actor.IsAdmin() {
		return models.Swap{}, ErrForbidden
	}
	return swap, nil
}

// Accept records the recipient's acceptance. The proposer confirmed by
// proposing, so the swap is completed in the same transaction and the item
// is marked swapped.
func (s *SwapService) Accept(ctx context.Context, actor Actor, id string) (models.Swap, error) {
	var (
		swap    models.Swap
		changes []transition
	)
	err := s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		changes = nil

		current, err := s.getSwap(ctx, tx, id)
		if err != nil {
			return err
		}
		if actor.ID != current.RecipientID {
			return fmt.Errorf("%w: only the recipient can accept a swap", ErrForbidden)
		}

		accepted, err := s.setStatus(ctx, tx, current, models.SwapProposed, models.SwapAccepted, &actor.ID)
		if err != nil {
			return err
		}
		changes = append(changes, transition{swap: accepted, at: accepted.UpdatedAt})

		swap, err = s.complete(ctx, tx, accepted, &actor.ID)
		if err != nil {
			return err
		}
		changes = append(changes, transition{swap: swap, at: swap.UpdatedAt})
		return nil
	})
	if err != nil {
		return models.Swap{}, err
	}

	s.announce(changes...)
	return swap, nil
}

// complete finishes an accepted swap and marks its item swapped. The item
// update is guarded on the approved status so it happens exactly once.
func (s *SwapService) complete(ctx context.Context, tx *sql.Tx, swap models.Swap, actorID *string) (models.Swap, error) {
	query, args, err := s.db.Builder.
		Update("items").
		Set("status", models.ItemSwapped).
		Set("updated_at", now()).
		Where(sq.Eq{"id": swap.ItemID, "status": models.ItemApproved, "deleted_at": nil}).
		ToSql()
	if err != nil {
		return models.Swap{}, fmt.Errorf("building item swap update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Swap{}, fmt.Errorf("marking item swapped: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return models.Swap{}, fmt.Errorf("%w: item is no longer available", ErrInvalidState)
	}

	completed, err := s.setStatus(ctx, tx, swap, models.SwapAccepted, models.SwapCompleted, actorID)
	if err != nil {
		return models.Swap{}, err
	}
	return completed, nil
}

// Reject declines a proposal. Only the recipient may reject.
func (s *SwapService) Reject(ctx context.Context, actor Actor, id string) (models.Swap, error) {
	return s.decide(ctx, actor, id, models.SwapRejected, func(swap models.Swap) error {
		if actor.ID != swap.RecipientID {
			return fmt.Errorf("%w: only the recipient can reject a swap", ErrForbidden)
		}
		return nil
	})
}

// Cancel withdraws a proposal. Only the proposer may cancel, and only
// before the recipient has answered.
func (s *SwapService) Cancel(ctx context.Context, actor Actor, id string) (models.Swap, error) {
	return s.decide(ctx, actor, id, models.SwapCancelled, func(swap models.Swap) error {
		if actor.ID != swap.ProposerID {
			return fmt.Errorf("%w: only the proposer can cancel a swap", ErrForbidden)
		}
		return nil
	})
}

func (s *SwapService) decide(ctx context.Context, actor Actor, id, status string, allowed func(models.Swap) error) (models.Swap, error) {
	var swap models.Swap
	err := s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		current, err := s.getSwap(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := allowed(current); err != nil {
			return err
		}

		swap, err = s.setStatus(ctx, tx, current, models.SwapProposed, status, &actor.ID)
		return err
	})
	if err != nil {
		return models.Swap{}, err
	}

	s.announce(transition{swap: swap, at: swap.UpdatedAt})
	return swap, nil
}

// setStatus moves swap from one status to another. The update is guarded on
// the expected current status, so a concurrent transition makes it fail with
// ErrInvalidState instead of overwriting. actorID is recorded on the event;
// nil marks a system change.
func (s *SwapService) setStatus(ctx context.Context, tx *sql.Tx, swap models.Swap, from, to string, actorID *string) (models.Swap, error) {
	if swap.Status != from {
		return models.Swap{}, fmt.Errorf("%w: swap is %s", ErrInvalidState, swap.Status)
	}

	ts := now()
	query, args, err := s.db.Builder.
		Update("swaps").
		Set("status", to).
		Set("updated_at", ts).
		Where(sq.Eq{"id": swap.ID, "status": from}).
		ToSql()
	if err != nil {
		return models.Swap{}, fmt.Errorf("building swap update: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Swap{}, fmt.Errorf("updating swap: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return models.Swap{}, fmt.Errorf("%w: swap changed concurrently", ErrInvalidState)
	}

	message := fmt.Sprintf("swap %s %s", swap.ID, to)
	if err := s.events.CreateEvent(ctx, tx, "swap."+to, LevelInfo, message, actorID); err != nil {
		return models.Swap{}, err
	}

	swap.Status = to
	swap.UpdatedAt = ts
	return swap, nil
}

// ExpireStale cancels proposals nobody answered for longer than olderThan
// and returns how many were cancelled.
func (s *SwapService) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := now().Add(-olderThan)

	query, args, err := s.db.Builder.
		Select(swapColumns...).
		From("swaps").
		Where(sq.Eq{"status": models.SwapProposed}).
		Where(sq.Lt{"updated_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building stale swap query: %w", err)
	}

	var stale []models.Swap
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("querying stale swaps: %w", err)
	}
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning stale swap: %w", err)
		}
		stale = append(stale, swap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range stale {
		var swap models.Swap
		err := s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
			var err error
			swap, err = s.setStatus(ctx, tx, candidate, models.SwapProposed, models.SwapCancelled, nil)
			return err
		})
		if errors.Is(err, ErrInvalidState) {
			// answered while we were sweeping
			continue
		}
		if err != nil {
			return expired, err
		}
		expired++
		s.announce(transition{swap: swap, at: swap.UpdatedAt})
	}
	return expired, nil
}

// announce publishes committed transitions to both participants.
func (s *SwapService) announce(transitions ...transition) {
	for _, t := range transitions {
		s.log.Info().
			Str("swap_id", t.swap.ID).
			Str("status", t.swap.Status).
			Msg("swap transition")

		if s.recorder != nil {
			s.recorder.SwapTransition(t.swap.Status)
		}
		if s.notifier != nil {
			event := models.SwapEvent{SwapID: t.swap.ID, NewStatus: t.swap.Status, Timestamp: t.at}
			s.notifier.NotifySwap(event, t.swap.ProposerID, t.swap.RecipientID)
		}
	}
}
