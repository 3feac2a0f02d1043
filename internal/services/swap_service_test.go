package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/rewear-be/internal/models"
)

func TestSwapService_SelfSwapIsValidationError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	admin := env.adminActor(t)
	item := env.approvedItem(t, ana, admin, "Parka")

	// explicit recipient equal to the proposer wins over every other check
	_, err := env.swaps.Propose(ctx, ana.ID, ProposeInput{ItemID: "does-not-exist", RecipientID: ana.ID})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.swaps.Propose(ctx, ana.ID, ProposeInput{RecipientID: ana.ID})
	assert.ErrorIs(t, err, ErrValidation)

	// implicit recipient: the owner proposing on their own item
	_, err = env.swaps.Propose(ctx, ana.ID, ProposeInput{ItemID: item.ID})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, env.notifier.statuses())
}

func TestSwapService_ProposeChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	bob := env.member(t, "bob")
	carla := env.member(t, "carla")
	admin := env.adminActor(t)

	_, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	pending := env.item(t, ana, "Pending tee")
	_, err = env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: pending.ID})
	assert.ErrorIs(t, err, ErrInvalidState)

	item := env.approvedItem(t, ana, admin, "Trench coat")
	_, err = env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: item.ID, RecipientID: carla.ID})
	assert.ErrorIs(t, err, ErrValidation)

	swap, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: item.ID, RecipientID: ana.ID, Message: "trade?"})
	require.NoError(t, err)
	assert.Equal(t, models.SwapProposed, swap.Status)
	assert.Equal(t, ana.ID, swap.RecipientID)
	assert.Equal(t, "trade?", swap.Message)

	// item already mid-swap
	_, err = env.swaps.Propose(ctx, carla.ID, ProposeInput{ItemID: item.ID})
	assert.ErrorIs(t, err, ErrInvalidState)

	require.Len(t, env.notifier.sent, 1)
	assert.ElementsMatch(t, []string{bob.ID, ana.ID}, env.notifier.sent[0].userIDs)
}

func TestSwapService_ExampleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	y := env.member(t, "yara")
	x := env.member(t, "xavi")
	admin := env.adminActor(t)

	item := env.item(t, y, "Item seven")
	approved, err := env.admin.ApproveItem(ctx, admin, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemApproved, approved.Status)

	swap, err := env.swaps.Propose(ctx, x.ID, ProposeInput{ItemID: item.ID})
	require.NoError(t, err)
	assert.Equal(t, y.ID, swap.RecipientID)

	// only the recipient can accept
	_, err = env.swaps.Accept(ctx, x, swap.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	done, err := env.swaps.Accept(ctx, y, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapCompleted, done.Status)

	got, err := env.items.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemSwapped, got.Status)

	_, err = env.swaps.Accept(ctx, y, swap.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = env.swaps.Reject(ctx, y, swap.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = env.swaps.Cancel(ctx, x, swap.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	stored, err := env.swaps.GetSwap(ctx, x, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapCompleted, stored.Status)

	assert.Equal(t,
		[]string{models.SwapProposed, models.SwapAccepted, models.SwapCompleted},
		env.notifier.statuses())
	for _, n := range env.notifier.sent {
		assert.ElementsMatch(t, []string{x.ID, y.ID}, n.userIDs)
		assert.Equal(t, swap.ID, n.event.SwapID)
		assert.False(t, n.event.Timestamp.IsZero())
	}
	assert.Equal(t, 1, env.recorder.counts[models.SwapCompleted])

	stats, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items[models.ItemSwapped])
	assert.Equal(t, 1, stats.Swaps[models.SwapCompleted])
	assert.Equal(t, 0, stats.Swaps[models.SwapProposed])
	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, 3, stats.ActiveUsers)
}

func TestSwapService_EventsRecordTheActingUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	bob := env.member(t, "bob")
	admin := env.adminActor(t)

	accepted := env.approvedItem(t, ana, admin, "Corduroy pants")
	swap, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: accepted.ID})
	require.NoError(t, err)
	_, err = env.swaps.Accept(ctx, ana, swap.ID)
	require.NoError(t, err)

	rejected := env.approvedItem(t, ana, admin, "Knit beanie")
	swap, err = env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: rejected.ID})
	require.NoError(t, err)
	_, err = env.swaps.Reject(ctx, ana, swap.ID)
	require.NoError(t, err)

	events, err := env.events.GetRecentEvents(ctx, 100)
	require.NoError(t, err)

	actors := map[string][]string{}
	for _, e := range events {
		if !strings.HasPrefix(e.Type, "swap.") {
			continue
		}
		require.NotNil(t, e.UserID, e.Type)
		actors[e.Type] = append(actors[e.Type], *e.UserID)
	}
	assert.Equal(t, []string{bob.ID, bob.ID}, actors["swap.proposed"])
	assert.Equal(t, []string{ana.ID}, actors["swap.accepted"])
	assert.Equal(t, []string{ana.ID}, actors["swap.completed"])
	assert.Equal(t, []string{ana.ID}, actors["swap.rejected"])
}

func TestSwapService_SwappedItemCannotBeSwappedAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	bob := env.member(t, "bob")
	carla := env.member(t, "carla")
	admin := env.adminActor(t)
	item := env.approvedItem(t, ana, admin, "Boots")

	swap, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: item.ID})
	require.NoError(t, err)
	_, err = env.swaps.Accept(ctx, ana, swap.ID)
	require.NoError(t, err)

	_, err = env.swaps.Propose(ctx, carla.ID, ProposeInput{ItemID: item.ID})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSwapService_RejectAndCancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	bob := env.member(t, "bob")
	admin := env.adminActor(t)
	item := env.approvedItem(t, ana, admin, "Hoodie")

	first, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: item.ID})
	require.NoError(t, err)

	_, err = env.swaps.Reject(ctx, bob, first.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	rejected, err := env.swaps.Reject(ctx, ana, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapRejected, rejected.Status)

	// the item is free again once the proposal is closed
	second, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: item.ID})
	require.NoError(t, err)

	_, err = env.swaps.Cancel(ctx, ana, second.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	cancelled, err := env.swaps.Cancel(ctx, bob, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapCancelled, cancelled.Status)

	_, err = env.swaps.Accept(ctx, ana, second.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := env.items.GetItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ItemApproved, got.Status)
}

func TestSwapService_ListAndGet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	bob := env.member(t, "bob")
	carla := env.member(t, "carla")
	admin := env.adminActor(t)

	anaItem := env.approvedItem(t, ana, admin, "Dress")
	bobItem := env.approvedItem(t, bob, admin, "Jeans")

	toAna, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: anaItem.ID})
	require.NoError(t, err)
	toBob, err := env.swaps.Propose(ctx, ana.ID, ProposeInput{ItemID: bobItem.ID})
	require.NoError(t, err)
	_, err = env.swaps.Cancel(ctx, ana, toBob.ID)
	require.NoError(t, err)

	all, err := env.swaps.ListSwaps(ctx, ana.ID, models.SwapFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	incoming, err := env.swaps.ListSwaps(ctx, ana.ID, models.SwapFilter{Role: SwapRoleRecipient})
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, toAna.ID, incoming[0].ID)

	cancelled, err := env.swaps.ListSwaps(ctx, ana.ID, models.SwapFilter{Role: SwapRoleProposer, Status: models.SwapCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, toBob.ID, cancelled[0].ID)

	_, err = env.swaps.ListSwaps(ctx, ana.ID, models.SwapFilter{Role: "owner"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.swaps.GetSwap(ctx, carla, toAna.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.swaps.GetSwap(ctx, admin, toAna.ID)
	assert.NoError(t, err)
	_, err = env.swaps.GetSwap(ctx, ana, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSwapService_ExpireStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.member(t, "ana")
	bob := env.member(t, "bob")
	admin := env.adminActor(t)
	item := env.approvedItem(t, ana, admin, "Poncho")

	swap, err := env.swaps.Propose(ctx, bob.ID, ProposeInput{ItemID: item.ID})
	require.NoError(t, err)

	n, err := env.swaps.ExpireStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = env.swaps.ExpireStale(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	// age the proposal past the cutoff
	_, err = env.db.ExecContext(ctx, "UPDATE swaps SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Add(-48*time.Hour), swap.ID)
	require.NoError(t, err)

	n, err = env.swaps.ExpireStale(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.swaps.GetSwap(ctx, bob, swap.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SwapCancelled, got.Status)
	assert.Equal(t, []string{models.SwapProposed, models.SwapCancelled}, env.notifier.statuses())
}
