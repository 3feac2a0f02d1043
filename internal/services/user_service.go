package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/isdelr/rewear-be/internal/auth"
	"github.com/isdelr/rewear-be/internal/database"
	"github.com/isdelr/rewear-be/internal/logger"
	"github.com/isdelr/rewear-be/internal/models"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	Register(ctx context.Context, email, username, password string) (models.User, error)
	Authenticate(ctx context.Context, email, password string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (models.User, error)
	UpdatePassword(ctx context.Context, id, currentPassword, newPassword string) error
	Deactivate(ctx context.Context, actor Actor, id string) error
	ListUsers(ctx context.Context) ([]models.User, error)
	EnsureAdmin(ctx context.Context, email, password string) (models.User, error)
}

// ProfileUpdate carries the editable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Username       *string
	City           *string
	Bio            *string
	SwapPreference *string
}

var userColumns = []string{
	"id", "email", "username", "password_hash", "role",
	"city", "bio", "swap_preference", "created_at", "deactivated_at",
}

// UserService provides business logic for user management.
type UserService struct {
	db     *database.DB
	events EventServiceProvider
	log    *logger.Logger
}

// NewUserService creates a new UserService.
func NewUserService(db *database.DB, events EventServiceProvider, log *logger.Logger) *UserService {
	return &UserService{db: db, events: events, log: log.Component("users")}
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user        models.User
		deactivated sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role,
		&user.City, &user.Bio, &user.SwapPreference, &user.CreatedAt, &deactivated,
	)
	if err != nil {
		return models.User{}, err
	}
	if deactivated.Valid {
		t := deactivated.Time
		user.DeactivatedAt = &t
	}
	return user, nil
}

func (s *UserService) findOne(ctx context.Context, q database.Querier, where sq.Sqlizer) (models.User, error) {
	query, args, err := s.db.Builder.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("building user query: %w", err)
	}

	user, err := scanUser(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a single active user.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.findOne(ctx, s.db, sq.Eq{"id": id, "deactivated_at": nil})
}

// Register creates a new member account.
func (s *UserService) Register(ctx context.Context, email, username, password string) (models.User, error) {
	return s.create(ctx, email, username, password, models.RoleMember)
}

func (s *UserService) create(ctx context.Context, email, username, password, role string) (models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		ID:             uuid.NewString(),
		Email:          normalizeEmail(email),
		Username:       strings.TrimSpace(username),
		PasswordHash:   hash,
		Role:           role,
		SwapPreference: models.PreferenceBoth,
		CreatedAt:      now(),
	}

	query, args, err := s.db.Builder.
		Insert("users").
		Columns("id", "email", "username", "password_hash", "role", "swap_preference", "created_at").
		Values(user.ID, user.Email, user.Username, user.PasswordHash, user.Role, user.SwapPreference, user.CreatedAt).
		ToSql()
	if err != nil {
		return models.User{}, fmt.Errorf("building user insert: %w", err)
	}

	err = s.db.Retry(ctx, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if database.IsUniqueViolation(err) {
		return models.User{}, fmt.Errorf("%w: email or username already taken", ErrConflict)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("inserting user: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate verifies a user's credentials. Unknown emails, wrong
// passwords and deactivated accounts are indistinguishable to the caller.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.findOne(ctx, s.db, sq.Eq{"email": normalizeEmail(email)})
	if errors.Is(err, ErrNotFound) {
		return models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}

	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if !user.IsActive() {
		s.log.Warn().Str("user_id", user.ID).Msg("login attempt on deactivated account")
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of update.
func (s *UserService) UpdateProfile(ctx context.Context, id string, update ProfileUpdate) (models.User, error) {
	set := map[string]any{}
	if update.Username != nil {
		set["username"] = strings.TrimSpace(*update.Username)
	}
	if update.City != nil {
		set["city"] = strings.TrimSpace(*update.City)
	}
	if update.Bio != nil {
		set["bio"] = *update.Bio
	}
	if update.SwapPreference != nil {
		switch *update.SwapPreference {
		case models.PreferenceSwap, models.PreferenceSale, models.PreferenceBoth:
			set["swap_preference"] = *update.SwapPreference
		default:
			return models.User{}, fmt.Errorf("%w: unknown swap preference %q", ErrValidation, *update.SwapPreference)
		}
	}

	var user models.User
	err := s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if len(set) > 0 {
			query, args, err := s.db.Builder.
				Update("users").
				SetMap(set).
				Where(sq.Eq{"id": id, "deactivated_at": nil}).
				ToSql()
			if err != nil {
				return fmt.Errorf("building user update: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}

		var err error
		user, err = s.findOne(ctx, tx, sq.Eq{"id": id, "deactivated_at": nil})
		return err
	})
	if database.IsUniqueViolation(err) {
		return models.User{}, fmt.Errorf("%w: username already taken", ErrConflict)
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

// UpdatePassword verifies the current password, then hashes and sets a new one.
func (s *UserService) UpdatePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := auth.CheckPassword(user.PasswordHash, currentPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return fmt.Errorf("%w: current password is incorrect", ErrValidation)
		}
		return err
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}

	query, args, err := s.db.Builder.
		Update("users").
		Set("password_hash", hash).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building password update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return nil
}

// Deactivate soft-deletes an account. Users may deactivate themselves,
// admins may deactivate anyone but themselves.
func (s *UserService) Deactivate(ctx context.Context, actor Actor, id string) error {
	if actor.ID != id && !actor.IsAdmin() {
		return ErrForbidden
	}
	if actor.ID == id && actor.IsAdmin() {
		return fmt.Errorf("%w: admins cannot deactivate their own account", ErrInvalidState)
	}

	return s.db.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		query, args, err := s.db.Builder.
			Update("users").
			Set("deactivated_at", now()).
			Where(sq.Eq{"id": id, "deactivated_at": nil}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building deactivate: %w", err)
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("deactivating user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		message := fmt.Sprintf("user %s deactivated by %s", id, actor.ID)
		return s.events.CreateEvent(ctx, tx, "user.deactivated", LevelWarn, message, &id)
	})
}

// ListUsers returns every account, deactivated ones included, newest first.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	query, args, err := s.db.Builder.
		Select(userColumns...).
		From("users").
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// EnsureAdmin makes sure an admin account exists for email. An existing
// account is promoted and reactivated; otherwise one is created. Running it
// again is a no-op.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (models.User, error) {
	existing, err := s.findOne(ctx, s.db, sq.Eq{"email": normalizeEmail(email)})
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin && existing.IsActive() {
			return existing, nil
		}
		query, args, err := s.db.Builder.
			Update("users").
			Set("role", models.RoleAdmin).
			Set("deactivated_at", nil).
			Where(sq.Eq{"id": existing.ID}).
			ToSql()
		if err != nil {
			return models.User{}, fmt.Errorf("building admin promotion: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return models.User{}, fmt.Errorf("promoting admin: %w", err)
		}
		s.log.Info().Str("user_id", existing.ID).Msg("promoted existing account to admin")
		existing.Role = models.RoleAdmin
		existing.DeactivatedAt = nil
		return existing, nil
	case !errors.Is(err, ErrNotFound):
		return models.User{}, err
	}

	username := "admin"
	user, err := s.create(ctx, email, username, password, models.RoleAdmin)
	if errors.Is(err, ErrConflict) {
		// username taken by a member
		username = fmt.Sprintf("admin_%d", time.Now().Unix()%100000)
		user, err = s.create(ctx, email, username, password, models.RoleAdmin)
	}
	if err != nil {
		return models.User{}, err
	}
	s.log.Info().Str("user_id", user.ID).Msg("seeded admin account")
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
