package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/rewear-be/internal/models"
)

func TestUserService_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.users.Register(ctx, "  Ana@Example.COM ", "ana", "password123")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, models.RoleMember, user.Role)
	assert.Equal(t, models.PreferenceBoth, user.SwapPreference)
	assert.NotEqual(t, "password123", user.PasswordHash)

	_, err = env.users.Register(ctx, "ana@example.com", "other", "password123")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.users.Register(ctx, "new@example.com", "ana", "password123")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestUserService_Authenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")

	user, err := env.users.Authenticate(ctx, "ANA@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, user.ID)

	_, err = env.users.Authenticate(ctx, "ana@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.users.Authenticate(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, env.users.Deactivate(ctx, ana, ana.ID))
	_, err = env.users.Authenticate(ctx, "ana@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.users.GetUserByID(ctx, ana.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserService_UpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	env.member(t, "bob")

	city, bio, pref := "Lisbon", "vintage denim", models.PreferenceSwap
	user, err := env.users.UpdateProfile(ctx, ana.ID, ProfileUpdate{City: &city, Bio: &bio, SwapPreference: &pref})
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", user.City)
	assert.Equal(t, "vintage denim", user.Bio)
	assert.Equal(t, models.PreferenceSwap, user.SwapPreference)
	assert.Equal(t, "ana", user.Username)

	bad := "gift"
	_, err = env.users.UpdateProfile(ctx, ana.ID, ProfileUpdate{SwapPreference: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	taken := "bob"
	_, err = env.users.UpdateProfile(ctx, ana.ID, ProfileUpdate{Username: &taken})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = env.users.UpdateProfile(ctx, "missing", ProfileUpdate{City: &city})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserService_UpdatePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")

	err := env.users.UpdatePassword(ctx, ana.ID, "wrong", "newpassword1")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, env.users.UpdatePassword(ctx, ana.ID, "password123", "newpassword1"))

	_, err = env.users.Authenticate(ctx, "ana@example.com", "newpassword1")
	assert.NoError(t, err)
}

func TestUserService_Deactivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	bob := env.member(t, "bob")
	admin := env.adminActor(t)

	assert.ErrorIs(t, env.users.Deactivate(ctx, bob, ana.ID), ErrForbidden)
	assert.ErrorIs(t, env.users.Deactivate(ctx, admin, admin.ID), ErrInvalidState)

	require.NoError(t, env.admin.DeactivateUser(ctx, admin, ana.ID))
	assert.ErrorIs(t, env.admin.DeactivateUser(ctx, admin, ana.ID), ErrNotFound)

	users, err := env.admin.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	events, err := env.admin.RecentEvents(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "user.deactivated", events[0].Type)
}

func TestUserService_EnsureAdminIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.users.EnsureAdmin(ctx, "admin@example.com", "adminpass123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Role)

	second, err := env.users.EnsureAdmin(ctx, "admin@example.com", "adminpass123")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// an existing member is promoted rather than duplicated
	member := env.member(t, "carla")
	promoted, err := env.users.EnsureAdmin(ctx, "carla@example.com", "ignored-password")
	require.NoError(t, err)
	assert.Equal(t, member.ID, promoted.ID)
	assert.Equal(t, models.RoleAdmin, promoted.Role)
}
